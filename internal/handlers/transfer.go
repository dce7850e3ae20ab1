package handlers

//go:generate mockgen -source=transfer.go -destination=transfer_mock.go -package=handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// TransferWriter defines the interface that the service must implement.
type TransferWriter interface {
	Transfer(ctx context.Context, fromUserID, toUserID uuid.UUID, amount int64, isPurchase bool) (*models.Receipt, error)
}

// TransferRequest represents the JSON body for a peer transfer
// swagger:model TransferRequest
type TransferRequest struct {
	// Receiving user
	// required: true
	ToUserID string `json:"to_user_id"`

	// Positive integer amount, as a number or a numeric string
	// required: true
	// default: 40
	Amount Amount `json:"amount" swaggertype:"integer"`
}

// NewTransferHandler returns an HTTP handler for sending funds to another user.
// @Summary Transfer funds
// @Description Moves funds from the caller to another user. Both balances change in one transaction.
// @Tags wallet
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Replays the first response for repeated keys"
// @Param request body handlers.TransferRequest true "Transfer Request"
// @Success 200 {object} handlers.SuccessResponse{data=handlers.BalanceData} "Transfer succeeded"
// @Failure 400 {object} handlers.ErrorResponse "Invalid amount or request"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.ErrorResponse "User not found"
// @Failure 409 {object} handlers.ErrorResponse "Insufficient balance"
// @Failure 500 {object} handlers.ErrorResponse "Wallet error"
// @Router /wallet/transfer [post]
// @Security BearerAuth
func NewTransferHandler(
	svc TransferWriter,
	tokenGetter Tokener,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, ok := userIDFromRequest(w, r, tokenGetter)
		if !ok {
			return
		}

		var req TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Log.Warnw("failed to decode transfer request", "error", err)
			writeFailure(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
			return
		}

		toUserID, err := uuid.Parse(req.ToUserID)
		if err != nil {
			logger.Log.Warnw("invalid transfer recipient", "to_user_id", req.ToUserID, "error", err)
			writeFailure(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid to_user_id")
			return
		}

		amount, err := req.Amount.Int64()
		if err != nil {
			logger.Log.Warnw("invalid transfer amount", "amount", req.Amount.raw)
			writeServiceError(w, err)
			return
		}

		receipt, err := svc.Transfer(ctx, userID, toUserID, amount, false)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeSuccess(w, receipt.Code, receipt.Message, BalanceData{Balance: receipt.Balance})
	}
}
