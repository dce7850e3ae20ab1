package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/models"
	"github.com/sbilibin2017/gw-ledger-wallet/internal/services"
	"github.com/stretchr/testify/assert"
)

func TestDepositHandler(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name               string
		requestBody        string
		setupMocks         func(mockWriter *MockDepositWriter, mockTokener *MockTokener)
		expectedStatusCode int
		expectedCode       string
		expectedBalance    float64
	}{
		{
			name:        "successful deposit",
			requestBody: `{"amount": 50}`,
			setupMocks: func(mockWriter *MockDepositWriter, mockTokener *MockTokener) {
				expectCaller(mockTokener, userID)
				mockWriter.EXPECT().Deposit(gomock.Any(), userID, int64(50)).
					Return(&models.Receipt{Balance: 150, Code: models.CodeDepositSuccess, Message: "ok"}, nil)
			},
			expectedStatusCode: http.StatusOK,
			expectedCode:       models.CodeDepositSuccess,
			expectedBalance:    150,
		},
		{
			name:        "numeric string amount",
			requestBody: `{"amount": "50"}`,
			setupMocks: func(mockWriter *MockDepositWriter, mockTokener *MockTokener) {
				expectCaller(mockTokener, userID)
				mockWriter.EXPECT().Deposit(gomock.Any(), userID, int64(50)).
					Return(&models.Receipt{Balance: 50, Code: models.CodeDepositSuccess, Message: "ok"}, nil)
			},
			expectedStatusCode: http.StatusOK,
			expectedCode:       models.CodeDepositSuccess,
			expectedBalance:    50,
		},
		{
			name:        "invalid request body",
			requestBody: "invalid-json",
			setupMocks: func(mockWriter *MockDepositWriter, mockTokener *MockTokener) {
				expectCaller(mockTokener, userID)
			},
			expectedStatusCode: http.StatusBadRequest,
			expectedCode:       CodeInvalidRequest,
		},
		{
			name:        "non numeric amount",
			requestBody: `{"amount": "ten"}`,
			setupMocks: func(mockWriter *MockDepositWriter, mockTokener *MockTokener) {
				expectCaller(mockTokener, userID)
			},
			expectedStatusCode: http.StatusBadRequest,
			expectedCode:       CodeInvalidAmount,
		},
		{
			name:        "non positive amount rejected by service",
			requestBody: `{"amount": 0}`,
			setupMocks: func(mockWriter *MockDepositWriter, mockTokener *MockTokener) {
				expectCaller(mockTokener, userID)
				mockWriter.EXPECT().Deposit(gomock.Any(), userID, int64(0)).Return(nil, services.ErrInvalidAmount)
			},
			expectedStatusCode: http.StatusBadRequest,
			expectedCode:       CodeInvalidAmount,
		},
		{
			name:        "unauthorized invalid token",
			requestBody: `{"amount": 50}`,
			setupMocks: func(mockWriter *MockDepositWriter, mockTokener *MockTokener) {
				mockTokener.EXPECT().GetTokenFromRequest(gomock.Any(), gomock.Any()).Return(validToken, nil)
				mockTokener.EXPECT().GetClaims(gomock.Any(), validToken).Return(nil, http.ErrNoCookie)
			},
			expectedStatusCode: http.StatusUnauthorized,
			expectedCode:       CodeUnauthorized,
		},
		{
			name:        "internal server error from writer",
			requestBody: `{"amount": 50}`,
			setupMocks: func(mockWriter *MockDepositWriter, mockTokener *MockTokener) {
				expectCaller(mockTokener, userID)
				mockWriter.EXPECT().Deposit(gomock.Any(), userID, int64(50)).Return(nil, assert.AnError)
			},
			expectedStatusCode: http.StatusInternalServerError,
			expectedCode:       CodeWalletError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockTokener := NewMockTokener(ctrl)
			mockWriter := NewMockDepositWriter(ctrl)
			tt.setupMocks(mockWriter, mockTokener)

			req := httptest.NewRequest(http.MethodPost, "/wallet/deposit", strings.NewReader(tt.requestBody))
			rr := httptest.NewRecorder()

			NewDepositHandler(mockWriter, mockTokener).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatusCode, rr.Code)
			resp := decodeBody(t, rr)
			assert.Equal(t, tt.expectedCode, resp["code"])
			if tt.expectedStatusCode == http.StatusOK {
				assert.Equal(t, tt.expectedBalance, resp["data"].(map[string]any)["balance"])
				assert.NotEmpty(t, resp["message"])
			}
		})
	}
}
