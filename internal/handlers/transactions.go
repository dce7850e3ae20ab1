package handlers

//go:generate mockgen -source=transactions.go -destination=transactions_mock.go -package=handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// TransactionsReader defines the interface that the service must implement.
type TransactionsReader interface {
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]models.TransactionDB, error)
}

// NewListTransactionsHandler returns an HTTP handler for the caller's transaction log.
// @Summary List transactions
// @Description Returns the caller's transactions, newest first
// @Tags wallet
// @Produce json
// @Success 200 {object} handlers.SuccessResponse{data=[]models.TransactionDB} "Transactions fetched, or NO_TRANSACTIONS"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.ErrorResponse "Wallet not found"
// @Failure 500 {object} handlers.ErrorResponse "Wallet error"
// @Router /wallet/transactions [get]
// @Security BearerAuth
func NewListTransactionsHandler(
	svc TransactionsReader,
	tokenGetter Tokener,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromRequest(w, r, tokenGetter)
		if !ok {
			return
		}

		txns, err := svc.ListTransactions(r.Context(), userID)
		if err != nil {
			logger.Log.Infow("failed to list transactions", "userID", userID, "error", err)
			writeServiceError(w, err)
			return
		}

		if len(txns) == 0 {
			writeSuccess(w, CodeNoTransactions, "No transactions yet", []models.TransactionDB{})
			return
		}
		writeSuccess(w, CodeTransactionsFetched, "Transactions fetched successfully", txns)
	}
}
