package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/dto"
	"github.com/GlebRadaev/walletledger/internal/handlers/httperr"
	"github.com/GlebRadaev/walletledger/internal/service/transferservice"
	"github.com/GlebRadaev/walletledger/internal/service/walletservice"
	"github.com/GlebRadaev/walletledger/pkg/auth"
	"github.com/GlebRadaev/walletledger/pkg/utils"
)

//go:generate mockgen -source=wallet.go -destination=mock_wallet.go -package=wallet Service TransferService

type Service interface {
	CreateWallet(ctx context.Context, userID int64, currency domain.Currency) (*domain.Wallet, error)
	Summary(ctx context.Context, userID int64) (*walletservice.Summary, error)
}

type TransferService interface {
	Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error)
	Pay(ctx context.Context, payerID, merchantID int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error)
	Withdraw(ctx context.Context, userID int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error)
}

type WalletHandler struct {
	walletService   Service
	transferService TransferService
}

func New(walletService Service, transferService TransferService) *WalletHandler {
	return &WalletHandler{
		walletService:   walletService,
		transferService: transferService,
	}
}

// CreateWallet godoc
//
//	@Summary		Open a wallet
//	@Description	Create the wallet of the authenticated user with the default limits and a zero balance.
//	@Tags			Кошелёк
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.CreateWalletRequestDTO	false	"Wallet currency"
//	@Success		201		{object}	dto.WalletResponseDTO
//	@Failure		400		{object}	utils.Response	"Unsupported currency"
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		409		{object}	utils.Response	"Wallet already exists"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/wallet [post]
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req dto.CreateWalletRequestDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	wallet, err := h.walletService.CreateWallet(r.Context(), userID, req.Currency)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated,
		dto.NewWalletResponse(*wallet, wallet.AvailableDaily(), wallet.AvailableMonthly()))
}

// GetWallet godoc
//
//	@Summary		Get wallet summary
//	@Description	Balance, limits and what is still available to spend today and this month.
//	@Tags			Кошелёк
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	dto.WalletResponseDTO
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		404	{object}	utils.Response	"Wallet not found"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Router			/api/wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	summary, err := h.walletService.Summary(r.Context(), userID)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK,
		dto.NewWalletResponse(summary.Wallet, summary.AvailableDaily, summary.AvailableMonthly))
}

// Transfer godoc
//
//	@Summary		Send money to another user
//	@Tags			Кошелёк
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			Idempotency-Key	header		string					false	"Replay protection key"
//	@Param			request			body		dto.TransferRequestDTO	true	"Transfer request"
//	@Success		200				{object}	dto.TransactionResponseDTO
//	@Failure		400				{object}	utils.Response		"Invalid request"
//	@Failure		401				{object}	utils.Response		"User not authorized"
//	@Failure		402				{object}	dto.LimitErrorDTO	"Insufficient balance"
//	@Failure		404				{object}	utils.Response		"Wallet not found"
//	@Failure		422				{object}	dto.LimitErrorDTO	"Limit exceeded or wallet inactive"
//	@Failure		503				{object}	utils.Response		"Concurrent update, retry"
//	@Router			/api/wallet/transfer [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req dto.TransferRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReceiverID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "receiver_id is required")
		return
	}

	tx, err := h.transferService.Transfer(r.Context(), userID, req.ReceiverID, req.Amount, transferservice.Options{
		Fee:            req.Fee,
		Currency:       req.Currency,
		Description:    req.Description,
		Gateway:        domain.GatewayInternal,
		IdempotencyKey: utils.IdempotencyKey(r, req.IdempotencyKey),
		ActorID:        userID,
	})
	respond(w, tx, err)
}

// Pay godoc
//
//	@Summary		Pay a merchant
//	@Tags			Кошелёк
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			Idempotency-Key	header		string				false	"Replay protection key"
//	@Param			request			body		dto.PayRequestDTO	true	"Payment request"
//	@Success		200				{object}	dto.TransactionResponseDTO
//	@Failure		400				{object}	utils.Response		"Invalid request"
//	@Failure		401				{object}	utils.Response		"User not authorized"
//	@Failure		402				{object}	dto.LimitErrorDTO	"Insufficient balance"
//	@Failure		404				{object}	utils.Response		"Wallet not found"
//	@Failure		422				{object}	dto.LimitErrorDTO	"Limit exceeded or wallet inactive"
//	@Failure		503				{object}	utils.Response		"Concurrent update, retry"
//	@Router			/api/wallet/pay [post]
func (h *WalletHandler) Pay(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req dto.PayRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MerchantID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "merchant_id is required")
		return
	}

	tx, err := h.transferService.Pay(r.Context(), userID, req.MerchantID, req.Amount, transferservice.Options{
		Fee:            req.Fee,
		Currency:       req.Currency,
		Description:    req.Description,
		Gateway:        domain.GatewayInternal,
		IdempotencyKey: utils.IdempotencyKey(r, req.IdempotencyKey),
		ActorID:        userID,
	})
	respond(w, tx, err)
}

// Withdraw godoc
//
//	@Summary		Withdraw to an external gateway
//	@Tags			Кошелёк
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			Idempotency-Key	header		string					false	"Replay protection key"
//	@Param			request			body		dto.WithdrawRequestDTO	true	"Withdrawal request"
//	@Success		200				{object}	dto.TransactionResponseDTO
//	@Failure		400				{object}	utils.Response		"Invalid request"
//	@Failure		401				{object}	utils.Response		"User not authorized"
//	@Failure		402				{object}	dto.LimitErrorDTO	"Insufficient balance"
//	@Failure		422				{object}	dto.LimitErrorDTO	"Limit exceeded or wallet inactive"
//	@Failure		503				{object}	utils.Response		"Concurrent update, retry"
//	@Router			/api/wallet/withdraw [post]
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req dto.WithdrawRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Gateway == domain.GatewayInternal || (req.Gateway != "" && !req.Gateway.Valid()) {
		utils.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("unsupported gateway %q", req.Gateway))
		return
	}
	gateway := req.Gateway
	if gateway == "" {
		gateway = domain.GatewayBank
	}

	tx, err := h.transferService.Withdraw(r.Context(), userID, req.Amount, transferservice.Options{
		Fee:                  req.Fee,
		Currency:             req.Currency,
		Description:          req.Description,
		Gateway:              gateway,
		GatewayTransactionID: req.GatewayTransactionID,
		IdempotencyKey:       utils.IdempotencyKey(r, req.IdempotencyKey),
		ActorID:              userID,
	})
	respond(w, tx, err)
}

func respond(w http.ResponseWriter, tx *domain.Transaction, err error) {
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewTransactionResponse(*tx))
}
