package middlewares

import (
	"encoding/json"
	"net/http"

	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code}); err != nil {
		logger.Log.Errorw("failed to encode response", "error", err)
	}
}
