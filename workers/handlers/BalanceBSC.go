package handlers

import (
	"net/http"
)

// BalanceBSC is the BNB balance of the relayer account, in wei. It pays
// the gas of every contract call.
func (a *API) BalanceBSC(w http.ResponseWriter, r *http.Request) {
	balance, err := a.BSCBalance(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("Error getting BSC balance")
		responsePlain(w, []byte("error"), http.StatusInternalServerError)
		return
	}
	responsePlain(w, []byte(balance), http.StatusOK)
}
