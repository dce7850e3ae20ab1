package handlers

//go:generate mockgen -source=common.go -destination=common_mock.go -package=handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/jwt"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/logger"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/services"
)

// Tokener extracts the caller identity from the bearer token.
type Tokener interface {
	GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error)
	GetClaims(ctx context.Context, tokenString string) (*jwt.Claims, error)
}

// Error codes
const (
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeWalletNotFound      = "WALLET_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodePostNotFound        = "POST_NOT_FOUND"
	CodePurchaseNotAllowed  = "PURCHASE_NOT_ALLOWED"
	CodeAlreadySold         = "ALREADY_SOLD"
	CodePriceNotSet         = "PRICE_NOT_SET"
	CodeWalletError         = "WALLET_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidRequest      = "INVALID_REQUEST"
)

// Success codes not carried by receipts
const (
	CodeWalletFetched       = "WALLET_FETCHED"
	CodeTransactionsFetched = "TRANSACTIONS_FETCHED"
	CodeNoTransactions      = "NO_TRANSACTIONS"
)

// SuccessResponse is the envelope of every successful response
// swagger:model SuccessResponse
type SuccessResponse struct {
	// Human-readable message
	Message string `json:"message"`

	// Machine-readable code
	// default: DEPOSIT_SUCCESS
	Code string `json:"code"`

	// Payload
	Data any `json:"data"`
}

// ErrorResponse is the envelope of every failed response
// swagger:model ErrorResponse
type ErrorResponse struct {
	// Error message
	// default: Insufficient balance
	Error string `json:"error"`

	// Machine-readable code
	// default: INSUFFICIENT_BALANCE
	Code string `json:"code"`
}

// BalanceData carries the balance of the acting user
// swagger:model BalanceData
type BalanceData struct {
	// Balance after the operation
	// default: 150
	Balance int64 `json:"balance"`
}

// Amount accepts a JSON number or a numeric string.
type Amount struct {
	raw string
}

// UnmarshalJSON keeps the raw token; validation happens in Int64.
func (a *Amount) UnmarshalJSON(b []byte) error {
	a.raw = string(b)
	return nil
}

// Int64 returns the amount as an integer. Integral floats such as 100.0 are accepted.
func (a Amount) Int64() (int64, error) {
	s := strings.TrimSpace(a.raw)
	if s == "" || s == "null" {
		return 0, services.ErrInvalidAmount
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return 0, services.ErrInvalidAmount
		}
		s = strings.TrimSpace(unquoted)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, services.ErrInvalidAmount
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, services.ErrInvalidAmount
	}
	return int64(f), nil
}

// userIDFromRequest resolves the caller and writes 401 when it cannot.
func userIDFromRequest(w http.ResponseWriter, r *http.Request, tokener Tokener) (uuid.UUID, bool) {
	ctx := r.Context()

	tokenStr, err := tokener.GetTokenFromRequest(ctx, r)
	if err != nil {
		logger.Log.Warnw("failed to get token from request", "error", err)
		writeFailure(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}

	claims, err := tokener.GetClaims(ctx, tokenStr)
	if err != nil {
		logger.Log.Warnw("failed to get claims from token", "error", err)
		writeFailure(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}

	return claims.UserID, true
}

// writeServiceError maps a service error to its status and code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		writeFailure(w, http.StatusBadRequest, CodeInvalidAmount, "Invalid amount")
	case errors.Is(err, services.ErrInsufficientBalance):
		writeFailure(w, http.StatusConflict, CodeInsufficientBalance, "Insufficient balance")
	case errors.Is(err, services.ErrWalletNotFound):
		writeFailure(w, http.StatusNotFound, CodeWalletNotFound, "Wallet not found")
	case errors.Is(err, services.ErrUserNotFound):
		writeFailure(w, http.StatusNotFound, CodeUserNotFound, "User not found")
	case errors.Is(err, services.ErrPostNotFound):
		writeFailure(w, http.StatusNotFound, CodePostNotFound, "Post not found")
	case errors.Is(err, services.ErrPurchaseNotAllowed):
		writeFailure(w, http.StatusConflict, CodePurchaseNotAllowed, "Sellers cannot buy their own posts")
	case errors.Is(err, services.ErrAlreadySold):
		writeFailure(w, http.StatusGone, CodeAlreadySold, "Post already sold")
	case errors.Is(err, services.ErrPriceNotSet):
		writeFailure(w, http.StatusNotFound, CodePriceNotSet, "Post has no price")
	default:
		writeFailure(w, http.StatusInternalServerError, CodeWalletError, "Wallet error, please try again")
	}
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeSuccess(w http.ResponseWriter, code, message string, data any) {
	writeJSON(w, http.StatusOK, SuccessResponse{Message: message, Code: code, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Errorw("failed to encode response", "error", err)
	}
}
