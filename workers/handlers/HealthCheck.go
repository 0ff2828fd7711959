package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck fails when the journal is unreachable or every pipeline is
// down, restarting included.
func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := a.Journal.Ping(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("journal unreachable")
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "journal unreachable",
		}, http.StatusServiceUnavailable)
		return
	}
	if a.Running != nil && a.Running() == 0 {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "no pipeline running",
		}, http.StatusServiceUnavailable)
		return
	}
	responseJSON(w, &APIResponse{
		Status: "ok",
	}, http.StatusOK)
}
