package handlers

import (
	"net/http"
)

// BalanceRealis is the free balance of the relayer account, in plancks.
func (a *API) BalanceRealis(w http.ResponseWriter, r *http.Request) {
	balance, err := a.RealisBalance(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("Error getting Realis balance")
		responsePlain(w, []byte("error"), http.StatusInternalServerError)
		return
	}
	responsePlain(w, []byte(balance), http.StatusOK)
}
