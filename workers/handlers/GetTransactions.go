package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"gorealisbridge/journal"
	"gorealisbridge/types"
)

// GetFailedTransactions lists records of a source chain left in Error.
// Nothing resubmits them; this is the reconciliation entry point.
func (a *API) GetFailedTransactions(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainParam(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	failedTxs, err := a.Journal.ListByStatus(r.Context(), chain, types.StatusError, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("chain", chain.String()).Msg("Error listing failed records")
		responseJSON(w, nil, http.StatusInternalServerError)
		return
	}
	responseJSON(w, newAPIRecords(failedTxs), http.StatusOK)
}

// GetStuckTransactions lists InProgress records older than StuckAfter.
func (a *API) GetStuckTransactions(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainParam(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	stuckTxs, err := a.Journal.ListStuck(r.Context(), chain, a.StuckAfter, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("chain", chain.String()).Msg("Error listing stuck records")
		responseJSON(w, nil, http.StatusInternalServerError)
		return
	}
	responseJSON(w, newAPIRecords(stuckTxs), http.StatusOK)
}

func (a *API) GetTransaction(w http.ResponseWriter, r *http.Request) {
	chain, ok := chainParam(w, r)
	if !ok {
		return
	}
	hash := chi.URLParam(r, "hash")

	rec, err := a.Journal.Get(r.Context(), chain, hash)
	if errors.Is(err, journal.ErrNotFound) {
		responseError(w, "record not found", "hash", http.StatusNotFound)
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("chain", chain.String()).Str("hash", hash).Msg("Error reading record")
		responseJSON(w, nil, http.StatusInternalServerError)
		return
	}
	responseJSON(w, newAPIRecord(rec), http.StatusOK)
}
