package handlers

import (
	"net/http"
)

func (a *API) Checkpoint(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainParam(w, r)
	if !ok {
		return
	}

	height, found, err := a.Journal.GetCheckpoint(r.Context(), chain)
	if err != nil {
		a.Logger.Error().Err(err).Str("chain", chain.String()).Msg("Error reading checkpoint")
		responseJSON(w, nil, http.StatusInternalServerError)
		return
	}
	responseJSON(w, &APICheckpointResponse{
		Chain:  chain.String(),
		Height: height,
		Found:  found,
	}, http.StatusOK)
}
