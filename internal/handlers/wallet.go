package handlers

//go:generate mockgen -source=wallet.go -destination=wallet_mock.go -package=handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
)

// WalletReader defines the interface that the service must implement.
type WalletReader interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.AccountDB, error)
}

// WalletData represents the caller's wallet
// swagger:model WalletData
type WalletData struct {
	// Owner of the wallet
	UserID uuid.UUID `json:"user_id"`

	// Current balance
	// default: 150
	Balance int64 `json:"balance"`
}

// NewGetWalletHandler returns an HTTP handler for fetching the caller's wallet.
// @Summary Get wallet
// @Description Returns the balance of the caller's wallet
// @Tags wallet
// @Produce json
// @Success 200 {object} handlers.SuccessResponse{data=handlers.WalletData} "Wallet fetched"
// @Failure 401 {object} handlers.ErrorResponse "Unauthorized"
// @Failure 404 {object} handlers.ErrorResponse "Wallet not found"
// @Failure 500 {object} handlers.ErrorResponse "Wallet error"
// @Router /wallet [get]
// @Security BearerAuth
func NewGetWalletHandler(
	walletReader WalletReader,
	tokenGetter Tokener,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromRequest(w, r, tokenGetter)
		if !ok {
			return
		}

		account, err := walletReader.GetWallet(r.Context(), userID)
		if err != nil {
			logger.Log.Infow("failed to get wallet", "userID", userID, "error", err)
			writeServiceError(w, err)
			return
		}

		writeSuccess(w, CodeWalletFetched, "Wallet fetched successfully", WalletData{
			UserID:  account.OwnerID,
			Balance: account.Balance,
		})
	}
}
