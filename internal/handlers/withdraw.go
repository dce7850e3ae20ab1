package handlers

//go:generate mockgen -source=withdraw.go -destination=withdraw_mock.go -package=handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// WithdrawWriter defines the interface that the service must implement.
type WithdrawWriter interface {
	Withdraw(ctx context.Context, userID uuid.UUID, amount int64) (*models.Receipt, error)
}

// NewWithdrawHandler returns an HTTP handler for withdrawing funds from the caller's wallet.
// @Summary Withdraw funds
// @Description Removes funds from the caller's wallet. Fails without side effects when the balance is too low.
// @Tags wallet
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replays the first response for repeated keys"
// @Param request body handlers.AmountRequest true "Withdraw Request"
// @Success 200 {object} handlers.SuccessResponse{data=handlers.BalanceData} "Withdraw succeeded"
// @Failure 400 {object} handlers.ErrorResponse "Invalid amount"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 409 {object} handlers.ErrorResponse "Insufficient balance"
// @Failure 500 {object} handlers.ErrorResponse "Wallet error"
// @Router /wallet/withdraw [post]
// @Security BearerAuth
func NewWithdrawHandler(
	svc WithdrawWriter,
	tokenGetter Tokener,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, ok := userIDFromRequest(w, r, tokenGetter)
		if !ok {
			return
		}

		var req AmountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Warnw("failed to decode withdraw request", "error", err)
			writeFailure(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
			return
		}

		amount, err := req.Amount.Int64()
		if err != nil {
			logger.Log.Warnw("invalid withdraw amount", "amount", req.Amount.raw)
			writeServiceError(w, err)
			return
		}

		receipt, err := svc.Withdraw(ctx, userID, amount)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeSuccess(w, receipt.Code, receipt.Message, BalanceData{Balance: receipt.Balance})
	}
}
