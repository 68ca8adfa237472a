package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletledger/internal/service"
	"github.com/GlebRadaev/walletledger/pkg/auth"
	"github.com/GlebRadaev/walletledger/pkg/ratelimit"
)

func TestNew(t *testing.T) {
	h := New(&service.Services{}, auth.NewJWTService("secret"), nil)
	assert.NotNil(t, h, "Handlers should not be nil")
	assert.NotNil(t, h.WalletHandler)
	assert.NotNil(t, h.TransactionHandler)
	assert.NotNil(t, h.AdminHandler)
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestInitRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)

	walletHandler := NewMockWalletHandler(ctrl)
	transactionHandler := NewMockTransactionHandler(ctrl)
	adminHandler := NewMockAdminHandler(ctrl)

	walletHandler.EXPECT().GetWallet(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	walletHandler.EXPECT().CreateWallet(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	walletHandler.EXPECT().Transfer(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	walletHandler.EXPECT().Pay(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	walletHandler.EXPECT().Withdraw(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	transactionHandler.EXPECT().GetTransactions(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	transactionHandler.EXPECT().GetStats(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	transactionHandler.EXPECT().GetTransaction(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	transactionHandler.EXPECT().GetByReference(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	transactionHandler.EXPECT().CancelTransaction(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().Deposit(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().Bonus(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().Refund(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().ChargeFee(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().Reverse(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().Deactivate(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().Activate(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().SetLimits(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()
	adminHandler.EXPECT().GetVolume(gomock.Any(), gomock.Any()).DoAndReturn(ok).AnyTimes()

	jwtService := auth.NewJWTService("secret")
	h := &Handlers{
		WalletHandler:      walletHandler,
		TransactionHandler: transactionHandler,
		AdminHandler:       adminHandler,
		JWT:                jwtService,
	}

	router := chi.NewRouter()
	h.InitRoutes(router)

	userToken, err := jwtService.GenerateJWT(1, auth.RoleUser, time.Now().Add(time.Hour))
	require.NoError(t, err)
	adminToken, err := jwtService.GenerateJWT(2, auth.RoleAdmin, time.Now().Add(time.Hour))
	require.NoError(t, err)

	tests := []struct {
		method string
		url    string
		token  string
		status int
	}{
		{"GET", "/api/wallet", "", http.StatusUnauthorized},
		{"GET", "/api/wallet", userToken, http.StatusOK},
		{"POST", "/api/wallet", userToken, http.StatusOK},
		{"POST", "/api/wallet/transfer", userToken, http.StatusOK},
		{"POST", "/api/wallet/pay", userToken, http.StatusOK},
		{"POST", "/api/wallet/withdraw", userToken, http.StatusOK},
		{"GET", "/api/transactions", userToken, http.StatusOK},
		{"GET", "/api/transactions/stats", userToken, http.StatusOK},
		{"GET", "/api/transactions/15", userToken, http.StatusOK},
		{"GET", "/api/transactions/reference/TRA1792058400000042", userToken, http.StatusOK},
		{"POST", "/api/transactions/15/cancel", userToken, http.StatusOK},
		{"POST", "/api/admin/deposit", "", http.StatusUnauthorized},
		{"POST", "/api/admin/deposit", userToken, http.StatusForbidden},
		{"POST", "/api/admin/deposit", adminToken, http.StatusOK},
		{"POST", "/api/admin/bonus", adminToken, http.StatusOK},
		{"POST", "/api/admin/refund", adminToken, http.StatusOK},
		{"POST", "/api/admin/fee", adminToken, http.StatusOK},
		{"POST", "/api/admin/transactions/15/reverse", adminToken, http.StatusOK},
		{"POST", "/api/admin/wallets/3/deactivate", adminToken, http.StatusOK},
		{"POST", "/api/admin/wallets/3/activate", adminToken, http.StatusOK},
		{"PUT", "/api/admin/wallets/3/limits", adminToken, http.StatusOK},
		{"GET", "/api/admin/volume", userToken, http.StatusForbidden},
		{"GET", "/api/admin/volume", adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.url, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.url, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestInitRoutesRateLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	walletHandler := NewMockWalletHandler(ctrl)
	walletHandler.EXPECT().GetWallet(gomock.Any(), gomock.Any()).DoAndReturn(ok).Times(1)

	jwtService := auth.NewJWTService("secret")
	h := &Handlers{
		WalletHandler:      walletHandler,
		TransactionHandler: NewMockTransactionHandler(ctrl),
		AdminHandler:       NewMockAdminHandler(ctrl),
		JWT:                jwtService,
		RateLimit:          ratelimit.New(0.001, 1).Middleware,
	}
	router := chi.NewRouter()
	h.InitRoutes(router)

	token, err := jwtService.GenerateJWT(1, auth.RoleUser, time.Now().Add(time.Hour))
	require.NoError(t, err)

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
