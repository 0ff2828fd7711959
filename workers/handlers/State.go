package handlers

import (
	"net/http"
)

// State reports the pipelines as the orchestrator sees them.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	var pipelines interface{}
	if a.Pipelines != nil {
		pipelines = a.Pipelines()
	}
	responseJSON(w, &APIStateResponse{
		Status:    "ok",
		Pipelines: pipelines,
	}, http.StatusOK)
}
