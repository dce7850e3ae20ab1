package handlers

//go:generate mockgen -source=purchase.go -destination=purchase_mock.go -package=handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// Purchaser defines the interface that the service must implement.
type Purchaser interface {
	Purchase(ctx context.Context, buyerID uuid.UUID, postID int64) (*models.Receipt, error)
}

// NewPurchaseHandler returns an HTTP handler for buying a post.
// @Summary Purchase post
// @Description Pays the post's price to its author and marks the post sold.
// @Tags wallet
// @Produce json
// @Param postID path int true "Post ID"
// @Param Idempotency-Key header string false "Replays the first response for repeated keys"
// @Success 200 {object} handlers.SuccessResponse{data=handlers.BalanceData} "Purchase succeeded"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.ErrorResponse "Post not found or price not set"
// @Failure 409 {object} handlers.ErrorResponse "Self purchase or insufficient balance"
// @Failure 410 {object} handlers.ErrorResponse "Post already sold"
// @Failure 500 {object} handlers.ErrorResponse "Wallet error"
// @Router /wallet/purchase/{postID} [post]
// @Security BearerAuth
func NewPurchaseHandler(
	svc Purchaser,
	tokenGetter Tokener,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, ok := userIDFromRequest(w, r, tokenGetter)
		if !ok {
			return
		}

		postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
		if err != nil || postID <= 0 {
			logger.Log.Warnw("invalid post id", "postID", chi.URLParam(r, "postID"))
			writeFailure(w, http.StatusNotFound, CodePostNotFound, "Post not found")
			return
		}

		receipt, err := svc.Purchase(ctx, userID, postID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeSuccess(w, receipt.Code, receipt.Message, BalanceData{Balance: receipt.Balance})
	}
}
