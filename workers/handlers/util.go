package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"gorealisbridge/types"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responsePlain(w http.ResponseWriter, data []byte, code int) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	w.Write(data)
}

func responseError(w http.ResponseWriter, message, field string, code int) {
	responseJSON(w, &APIResponse{
		Status:  "error",
		Message: message,
		Field:   field,
	}, code)
}

// chainParam reads the {chain} url parameter. It writes the error response
// itself and reports false when the chain is unknown.
func chainParam(w http.ResponseWriter, r *http.Request) (types.Chain, bool) {
	chain, err := types.ParseChain(chi.URLParam(r, "chain"))
	if err != nil {
		responseError(w, err.Error(), "chain", http.StatusBadRequest)
		return types.ChainUnknown, false
	}
	return chain, true
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		responseError(w, "limit must be between 1 and 1000", "limit", http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}
