package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/GlebRadaev/walletledger/docs"
	adminhandlers "github.com/GlebRadaev/walletledger/internal/handlers/admin"
	transactionhandlers "github.com/GlebRadaev/walletledger/internal/handlers/transactions"
	wallethandlers "github.com/GlebRadaev/walletledger/internal/handlers/wallet"
	"github.com/GlebRadaev/walletledger/internal/service"
	"github.com/GlebRadaev/walletledger/pkg/auth"
)

//go:generate mockgen -source=handlers.go -destination=mock_handlers.go -package=handlers WalletHandler TransactionHandler AdminHandler

type WalletHandler interface {
	CreateWallet(w http.ResponseWriter, r *http.Request)
	GetWallet(w http.ResponseWriter, r *http.Request)
	Transfer(w http.ResponseWriter, r *http.Request)
	Pay(w http.ResponseWriter, r *http.Request)
	Withdraw(w http.ResponseWriter, r *http.Request)
}

type TransactionHandler interface {
	GetTransactions(w http.ResponseWriter, r *http.Request)
	GetStats(w http.ResponseWriter, r *http.Request)
	GetTransaction(w http.ResponseWriter, r *http.Request)
	GetByReference(w http.ResponseWriter, r *http.Request)
	CancelTransaction(w http.ResponseWriter, r *http.Request)
}

type AdminHandler interface {
	Deposit(w http.ResponseWriter, r *http.Request)
	Bonus(w http.ResponseWriter, r *http.Request)
	Refund(w http.ResponseWriter, r *http.Request)
	ChargeFee(w http.ResponseWriter, r *http.Request)
	Reverse(w http.ResponseWriter, r *http.Request)
	Deactivate(w http.ResponseWriter, r *http.Request)
	Activate(w http.ResponseWriter, r *http.Request)
	SetLimits(w http.ResponseWriter, r *http.Request)
	GetVolume(w http.ResponseWriter, r *http.Request)
}

type Handlers struct {
	WalletHandler      WalletHandler
	TransactionHandler TransactionHandler
	AdminHandler       AdminHandler

	JWT       auth.JWTServiceInterface
	RateLimit func(http.Handler) http.Handler
}

func New(s *service.Services, jwt auth.JWTServiceInterface, rateLimit func(http.Handler) http.Handler) *Handlers {
	return &Handlers{
		WalletHandler:      wallethandlers.New(s.WalletService, s.TransferService),
		TransactionHandler: transactionhandlers.New(s.LedgerService, s.TransferService),
		AdminHandler:       adminhandlers.New(s.TransferService, s.WalletService, s.LedgerService),
		JWT:                jwt,
		RateLimit:          rateLimit,
	}
}

func (h *Handlers) InitRoutes(r chi.Router) chi.Router {
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	if h.RateLimit != nil {
		r.Use(h.RateLimit)
	}
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("doc.json"),
	))
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(h.JWT))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", h.WalletHandler.GetWallet)
			r.Post("/", h.WalletHandler.CreateWallet)
			r.Post("/transfer", h.WalletHandler.Transfer)
			r.Post("/pay", h.WalletHandler.Pay)
			r.Post("/withdraw", h.WalletHandler.Withdraw)
		})
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.TransactionHandler.GetTransactions)
			r.Get("/stats", h.TransactionHandler.GetStats)
			r.Get("/reference/{reference}", h.TransactionHandler.GetByReference)
			r.Get("/{id}", h.TransactionHandler.GetTransaction)
			r.Post("/{id}/cancel", h.TransactionHandler.CancelTransaction)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))

			r.Post("/deposit", h.AdminHandler.Deposit)
			r.Post("/bonus", h.AdminHandler.Bonus)
			r.Post("/refund", h.AdminHandler.Refund)
			r.Post("/fee", h.AdminHandler.ChargeFee)
			r.Post("/transactions/{id}/reverse", h.AdminHandler.Reverse)
			r.Route("/wallets/{userID}", func(r chi.Router) {
				r.Post("/deactivate", h.AdminHandler.Deactivate)
				r.Post("/activate", h.AdminHandler.Activate)
				r.Put("/limits", h.AdminHandler.SetLimits)
			})
			r.Get("/volume", h.AdminHandler.GetVolume)
		})
	})

	return r
}
