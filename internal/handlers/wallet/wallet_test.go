package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/dto"
	"github.com/GlebRadaev/walletledger/internal/service/transferservice"
	"github.com/GlebRadaev/walletledger/internal/service/walletservice"
	"github.com/GlebRadaev/walletledger/pkg/auth"
	"github.com/GlebRadaev/walletledger/pkg/utils"
)

func NewMock(t *testing.T) (*WalletHandler, *MockService, *MockTransferService) {
	ctrl := gomock.NewController(t)
	walletService := NewMockService(ctrl)
	transferService := NewMockTransferService(ctrl)
	return New(walletService, transferService), walletService, transferService
}

func request(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	ctx := context.WithValue(context.Background(), auth.UserIDKey, int64(1))
	ctx = context.WithValue(ctx, auth.RoleKey, auth.RoleUser)
	return r.WithContext(ctx)
}

func int64Ptr(v int64) *int64 { return &v }

func completed(t domain.TransactionType, sender, receiver *int64, amount int64) *domain.Transaction {
	return &domain.Transaction{
		ID:          10,
		ReferenceID: "TRA1792058400000042",
		Type:        t,
		SenderID:    sender,
		ReceiverID:  receiver,
		Amount:      decimal.NewFromInt(amount),
		Currency:    domain.CurrencyVND,
		Status:      domain.StatusCompleted,
		Gateway:     domain.GatewayInternal,
	}
}

func TestGetWallet(t *testing.T) {
	handler, walletService, _ := NewMock(t)

	tests := []struct {
		name         string
		prepareMock  func()
		expectedCode int
	}{
		{
			name: "Successful retrieval",
			prepareMock: func() {
				walletService.EXPECT().Summary(gomock.Any(), int64(1)).Return(&walletservice.Summary{
					Wallet: domain.Wallet{
						UserID:       1,
						Balance:      decimal.NewFromInt(150000),
						Currency:     domain.CurrencyVND,
						IsActive:     true,
						DailyLimit:   decimal.NewFromInt(50000000),
						MonthlyLimit: decimal.NewFromInt(1000000000),
					},
					AvailableDaily:   decimal.NewFromInt(50000000),
					AvailableMonthly: decimal.NewFromInt(1000000000),
				}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "No wallet",
			prepareMock: func() {
				walletService.EXPECT().Summary(gomock.Any(), int64(1)).Return(nil, domain.ErrWalletNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name: "Internal server error",
			prepareMock: func() {
				walletService.EXPECT().Summary(gomock.Any(), int64(1)).Return(nil, errors.New("error"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			w := httptest.NewRecorder()
			handler.GetWallet(w, request(http.MethodGet, "/api/wallet", ""))
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var body dto.WalletResponseDTO
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Equal(t, int64(1), body.UserID)
				assert.True(t, decimal.NewFromInt(150000).Equal(body.Balance))
				assert.True(t, decimal.NewFromInt(50000000).Equal(body.AvailableDaily))
			}
		})
	}
}

func TestCreateWallet(t *testing.T) {
	handler, walletService, _ := NewMock(t)

	tests := []struct {
		name         string
		body         string
		prepareMock  func()
		expectedCode int
	}{
		{
			name: "Default currency",
			body: "",
			prepareMock: func() {
				walletService.EXPECT().CreateWallet(gomock.Any(), int64(1), domain.Currency("")).
					Return(&domain.Wallet{UserID: 1, Currency: domain.CurrencyVND, IsActive: true}, nil)
			},
			expectedCode: http.StatusCreated,
		},
		{
			name: "Explicit currency",
			body: `{"currency":"USD"}`,
			prepareMock: func() {
				walletService.EXPECT().CreateWallet(gomock.Any(), int64(1), domain.CurrencyUSD).
					Return(&domain.Wallet{UserID: 1, Currency: domain.CurrencyUSD, IsActive: true}, nil)
			},
			expectedCode: http.StatusCreated,
		},
		{
			name: "Already exists",
			body: `{}`,
			prepareMock: func() {
				walletService.EXPECT().CreateWallet(gomock.Any(), int64(1), domain.Currency("")).
					Return(nil, domain.ErrWalletExists)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name:         "Broken body",
			body:         `{"currency":`,
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			w := httptest.NewRecorder()
			handler.CreateWallet(w, request(http.MethodPost, "/api/wallet", tt.body))
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestTransfer(t *testing.T) {
	handler, _, transferService := NewMock(t)

	tests := []struct {
		name          string
		body          string
		header        string
		prepareMock   func()
		expectedCode  int
		expectedError string
	}{
		{
			name:   "Successful transfer",
			body:   `{"receiver_id":2,"amount":"20000","fee":"100","description":"dinner"}`,
			header: "key-1",
			prepareMock: func() {
				transferService.EXPECT().Transfer(gomock.Any(), int64(1), int64(2), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _, _ int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error) {
						assert.True(t, decimal.NewFromInt(20000).Equal(amount))
						assert.True(t, decimal.NewFromInt(100).Equal(opts.Fee))
						assert.Equal(t, "key-1", *opts.IdempotencyKey)
						assert.Equal(t, "dinner", *opts.Description)
						assert.Equal(t, int64(1), opts.ActorID)
						return completed(domain.TransactionTypeTransfer, int64Ptr(1), int64Ptr(2), 20000), nil
					})
			},
			expectedCode: http.StatusOK,
		},
		{
			name:          "Missing receiver",
			body:          `{"amount":"10"}`,
			prepareMock:   func() {},
			expectedCode:  http.StatusBadRequest,
			expectedError: "receiver_id is required",
		},
		{
			name:         "Invalid body",
			body:         `{"receiver_id":`,
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "Insufficient balance",
			body: `{"receiver_id":2,"amount":"20000"}`,
			prepareMock: func() {
				transferService.EXPECT().Transfer(gomock.Any(), int64(1), int64(2), gomock.Any(), gomock.Any()).
					Return(nil, &domain.LimitError{Reason: domain.ErrInsufficientBalance})
			},
			expectedCode:  http.StatusPaymentRequired,
			expectedError: "insufficient balance",
		},
		{
			name: "Daily limit exceeded",
			body: `{"receiver_id":2,"amount":"20000"}`,
			prepareMock: func() {
				transferService.EXPECT().Transfer(gomock.Any(), int64(1), int64(2), gomock.Any(), gomock.Any()).
					Return(nil, &domain.LimitError{Reason: domain.ErrDailyLimitExceeded})
			},
			expectedCode:  http.StatusUnprocessableEntity,
			expectedError: "daily limit exceeded",
		},
		{
			name: "Concurrency conflict",
			body: `{"receiver_id":2,"amount":"20000"}`,
			prepareMock: func() {
				transferService.EXPECT().Transfer(gomock.Any(), int64(1), int64(2), gomock.Any(), gomock.Any()).
					Return(nil, domain.ErrConcurrencyConflict)
			},
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := request(http.MethodPost, "/api/wallet/transfer", tt.body)
			if tt.header != "" {
				r.Header.Set(utils.IdempotencyHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.Transfer(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedError != "" {
				var body utils.Response
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Equal(t, tt.expectedError, body.Error)
			}
			if tt.expectedCode == http.StatusOK {
				var body dto.TransactionResponseDTO
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.Equal(t, domain.StatusCompleted, body.Status)
				assert.Equal(t, "TRA1792058400000042", body.ReferenceID)
			}
		})
	}
}

func TestPay(t *testing.T) {
	handler, _, transferService := NewMock(t)

	transferService.EXPECT().Pay(gomock.Any(), int64(1), int64(900), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error) {
			assert.True(t, decimal.NewFromInt(125000).Equal(amount))
			assert.Equal(t, "order-1182", *opts.IdempotencyKey)
			return completed(domain.TransactionTypePayment, int64Ptr(1), int64Ptr(900), 125000), nil
		})

	w := httptest.NewRecorder()
	handler.Pay(w, request(http.MethodPost, "/api/wallet/pay", `{"merchant_id":900,"amount":125000,"idempotency_key":"order-1182"}`))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.Pay(w, request(http.MethodPost, "/api/wallet/pay", `{"amount":125000}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWithdraw(t *testing.T) {
	handler, _, transferService := NewMock(t)

	tests := []struct {
		name         string
		body         string
		prepareMock  func()
		expectedCode int
	}{
		{
			name: "Defaults to bank",
			body: `{"amount":"500000","fee":"1100"}`,
			prepareMock: func() {
				transferService.EXPECT().Withdraw(gomock.Any(), int64(1), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ int64, _ decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error) {
						assert.Equal(t, domain.GatewayBank, opts.Gateway)
						return completed(domain.TransactionTypeWithdraw, int64Ptr(1), nil, 500000), nil
					})
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "Momo gateway",
			body: `{"amount":"500000","gateway":"momo","gateway_transaction_id":"MM-1"}`,
			prepareMock: func() {
				transferService.EXPECT().Withdraw(gomock.Any(), int64(1), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ int64, _ decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error) {
						assert.Equal(t, domain.GatewayMomo, opts.Gateway)
						assert.Equal(t, "MM-1", *opts.GatewayTransactionID)
						return completed(domain.TransactionTypeWithdraw, int64Ptr(1), nil, 500000), nil
					})
			},
			expectedCode: http.StatusOK,
		},
		{
			name:         "Internal gateway is refused",
			body:         `{"amount":"500000","gateway":"internal"}`,
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Unknown gateway",
			body:         `{"amount":"500000","gateway":"paypal"}`,
			prepareMock:  func() {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "Inactive wallet",
			body: `{"amount":"500000"}`,
			prepareMock: func() {
				transferService.EXPECT().Withdraw(gomock.Any(), int64(1), gomock.Any(), gomock.Any()).
					Return(nil, domain.ErrInactiveWallet)
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			w := httptest.NewRecorder()
			handler.Withdraw(w, request(http.MethodPost, "/api/wallet/withdraw", tt.body))
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}
