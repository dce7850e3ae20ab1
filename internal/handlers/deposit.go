package handlers

//go:generate mockgen -source=deposit.go -destination=deposit_mock.go -package=handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// DepositWriter defines the interface that the service must implement.
type DepositWriter interface {
	Deposit(ctx context.Context, userID uuid.UUID, amount int64) (*models.Receipt, error)
}

// AmountRequest represents the JSON body of deposit and withdraw requests
// swagger:model AmountRequest
type AmountRequest struct {
	// Positive integer amount, as a number or a numeric string
	// required: true
	// default: 100
	Amount Amount `json:"amount" swaggertype:"integer"`
}

// NewDepositHandler returns an HTTP handler for depositing funds into the caller's wallet.
// @Summary Deposit funds
// @Description Adds funds to the caller's wallet, creating the wallet on first use.
// @Tags wallet
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replays the first response for repeated keys"
// @Param request body handlers.AmountRequest true "Deposit Request"
// @Success 200 {object} handlers.SuccessResponse{data=handlers.BalanceData} "Deposit succeeded"
// @Failure 400 {object} handlers.ErrorResponse "Invalid amount"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 500 {object} handlers.ErrorResponse "Wallet error"
// @Router /wallet/deposit [post]
// @Security BearerAuth
func NewDepositHandler(
	svc DepositWriter,
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
			logger.Log.Warnw("failed to decode deposit request", "error", err)
			writeFailure(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
			return
		}

		amount, err := req.Amount.Int64()
		if err != nil {
			logger.Log.Warnw("invalid deposit amount", "amount", req.Amount.raw)
			writeServiceError(w, err)
			return
		}

		receipt, err := svc.Deposit(ctx, userID, amount)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeSuccess(w, receipt.Code, receipt.Message, BalanceData{Balance: receipt.Balance})
	}
}
