package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/dto"
	"github.com/GlebRadaev/walletledger/internal/handlers/httperr"
	"github.com/GlebRadaev/walletledger/internal/service/transferservice"
	"github.com/GlebRadaev/walletledger/pkg/auth"
	"github.com/GlebRadaev/walletledger/pkg/utils"
)

//go:generate mockgen -source=admin.go -destination=mock_admin.go -package=admin TransferService WalletService LedgerService

type TransferService interface {
	Deposit(ctx context.Context, userID int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error)
	Bonus(ctx context.Context, userID int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error)
	Refund(ctx context.Context, userID int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error)
	ChargeFee(ctx context.Context, userID int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error)
	Execute(ctx context.Context, in transferservice.Intent) (*domain.Transaction, error)
	Reverse(ctx context.Context, actorID, txID int64) (*domain.Transaction, error)
}

type WalletService interface {
	Activate(ctx context.Context, actorID, userID int64) (*domain.Wallet, error)
	Deactivate(ctx context.Context, actorID, userID int64) (*domain.Wallet, error)
	SetLimits(ctx context.Context, actorID, userID int64, daily, monthly decimal.Decimal) (*domain.Wallet, error)
}

type LedgerService interface {
	DailyVolume(ctx context.Context, days int) ([]domain.DailyVolume, error)
}

type AdminHandler struct {
	transferService TransferService
	walletService   WalletService
	ledgerService   LedgerService
}

func New(transferService TransferService, walletService WalletService, ledgerService LedgerService) *AdminHandler {
	return &AdminHandler{
		transferService: transferService,
		walletService:   walletService,
		ledgerService:   ledgerService,
	}
}

type creditFunc func(ctx context.Context, userID int64, amount decimal.Decimal, opts transferservice.Options) (*domain.Transaction, error)

func (h *AdminHandler) credit(w http.ResponseWriter, r *http.Request, fn creditFunc, defaultGateway domain.Gateway) {
	var req dto.CreditRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Gateway == "" {
		req.Gateway = defaultGateway
	}

	tx, err := fn(r.Context(), req.UserID, req.Amount, creditOptions(r, req))
	respond(w, tx, err)
}

func creditOptions(r *http.Request, req dto.CreditRequestDTO) transferservice.Options {
	return transferservice.Options{
		Currency:             req.Currency,
		Description:          req.Description,
		Gateway:              req.Gateway,
		GatewayTransactionID: req.GatewayTransactionID,
		IdempotencyKey:       utils.IdempotencyKey(r, req.IdempotencyKey),
		ActorID:              auth.UserID(r.Context()),
	}
}

// Deposit godoc
//
//	@Summary		Credit a deposit confirmed by a gateway
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			Idempotency-Key	header		string					false	"Replay protection key"
//	@Param			request			body		dto.CreditRequestDTO	true	"Deposit"
//	@Success		200				{object}	dto.TransactionResponseDTO
//	@Failure		400				{object}	utils.Response	"Invalid request"
//	@Failure		403				{object}	utils.Response	"Admin role required"
//	@Failure		404				{object}	utils.Response	"Wallet not found"
//	@Failure		422				{object}	utils.Response	"Wallet inactive or currency mismatch"
//	@Router			/api/admin/deposit [post]
func (h *AdminHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.credit(w, r, h.transferService.Deposit, domain.GatewayBank)
}

// Bonus godoc
//
//	@Summary		Grant a bonus
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.CreditRequestDTO	true	"Bonus"
//	@Success		200		{object}	dto.TransactionResponseDTO
//	@Failure		400		{object}	utils.Response	"Invalid request"
//	@Failure		403		{object}	utils.Response	"Admin role required"
//	@Failure		404		{object}	utils.Response	"Wallet not found"
//	@Router			/api/admin/bonus [post]
func (h *AdminHandler) Bonus(w http.ResponseWriter, r *http.Request) {
	h.credit(w, r, h.transferService.Bonus, domain.GatewayInternal)
}

// Refund godoc
//
//	@Summary		Refund a user
//	@Description	With sender_id the refund is debited from that wallet, otherwise it comes from outside.
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.CreditRequestDTO	true	"Refund"
//	@Success		200		{object}	dto.TransactionResponseDTO
//	@Failure		400		{object}	utils.Response		"Invalid request"
//	@Failure		402		{object}	dto.LimitErrorDTO	"Sender balance too low"
//	@Failure		403		{object}	utils.Response		"Admin role required"
//	@Failure		404		{object}	utils.Response		"Wallet not found"
//	@Router			/api/admin/refund [post]
func (h *AdminHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Gateway == "" {
		req.Gateway = domain.GatewayInternal
	}
	opts := creditOptions(r, req)

	if req.SenderID == nil {
		tx, err := h.transferService.Refund(r.Context(), req.UserID, req.Amount, opts)
		respond(w, tx, err)
		return
	}
	tx, err := h.transferService.Execute(r.Context(), transferservice.Intent{
		Type:                 domain.TransactionTypeRefund,
		SenderID:             req.SenderID,
		ReceiverID:           &req.UserID,
		Amount:               req.Amount,
		Currency:             opts.Currency,
		Description:          opts.Description,
		Gateway:              opts.Gateway,
		GatewayTransactionID: opts.GatewayTransactionID,
		IdempotencyKey:       opts.IdempotencyKey,
		ActorID:              opts.ActorID,
	})
	respond(w, tx, err)
}

// ChargeFee godoc
//
//	@Summary		Charge a standalone fee
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.FeeRequestDTO	true	"Fee"
//	@Success		200		{object}	dto.TransactionResponseDTO
//	@Failure		400		{object}	utils.Response		"Invalid request"
//	@Failure		402		{object}	dto.LimitErrorDTO	"Insufficient balance"
//	@Failure		403		{object}	utils.Response		"Admin role required"
//	@Router			/api/admin/fee [post]
func (h *AdminHandler) ChargeFee(w http.ResponseWriter, r *http.Request) {
	var req dto.FeeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	tx, err := h.transferService.ChargeFee(r.Context(), req.UserID, req.Amount, transferservice.Options{
		Currency:       req.Currency,
		Description:    req.Description,
		Gateway:        domain.GatewayInternal,
		IdempotencyKey: utils.IdempotencyKey(r, req.IdempotencyKey),
		ActorID:        auth.UserID(r.Context()),
	})
	respond(w, tx, err)
}

// Reverse godoc
//
//	@Summary		Reverse a completed transaction
//	@Description	Moves the amount back with a new linked transaction. The fee is not returned.
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int	true	"Transaction id"
//	@Success		200	{object}	dto.TransactionResponseDTO
//	@Failure		400	{object}	utils.Response		"Invalid id"
//	@Failure		402	{object}	dto.LimitErrorDTO	"Receiver already spent the money"
//	@Failure		404	{object}	utils.Response		"Transaction not found"
//	@Failure		409	{object}	utils.Response		"Not reversible"
//	@Router			/api/admin/transactions/{id}/reverse [post]
func (h *AdminHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathID(r, "id")
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	tx, err := h.transferService.Reverse(r.Context(), auth.UserID(r.Context()), id)
	respond(w, tx, err)
}

// Deactivate godoc
//
//	@Summary		Freeze a wallet
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Produce		json
//	@Param			userID	path		int	true	"Owner id"
//	@Success		200		{object}	dto.WalletResponseDTO
//	@Failure		404		{object}	utils.Response	"Wallet not found"
//	@Router			/api/admin/wallets/{userID}/deactivate [post]
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.walletUpdate(w, r, h.walletService.Deactivate)
}

// Activate godoc
//
//	@Summary		Unfreeze a wallet
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Produce		json
//	@Param			userID	path		int	true	"Owner id"
//	@Success		200		{object}	dto.WalletResponseDTO
//	@Failure		404		{object}	utils.Response	"Wallet not found"
//	@Router			/api/admin/wallets/{userID}/activate [post]
func (h *AdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.walletUpdate(w, r, h.walletService.Activate)
}

func (h *AdminHandler) walletUpdate(
	w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, userID int64) (*domain.Wallet, error),
) {
	userID, ok := utils.PathID(r, "userID")
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	wallet, err := fn(r.Context(), auth.UserID(r.Context()), userID)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewWalletResponse(*wallet, wallet.AvailableDaily(), wallet.AvailableMonthly()))
}

// SetLimits godoc
//
//	@Summary		Change spend limits
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			userID	path		int						true	"Owner id"
//	@Param			request	body		dto.LimitsRequestDTO	true	"New limits"
//	@Success		200		{object}	dto.WalletResponseDTO
//	@Failure		400		{object}	utils.Response	"Negative limits"
//	@Failure		404		{object}	utils.Response	"Wallet not found"
//	@Router			/api/admin/wallets/{userID}/limits [put]
func (h *AdminHandler) SetLimits(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.PathID(r, "userID")
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req dto.LimitsRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wallet, err := h.walletService.SetLimits(r.Context(), auth.UserID(r.Context()), userID, req.DailyLimit, req.MonthlyLimit)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewWalletResponse(*wallet, wallet.AvailableDaily(), wallet.AvailableMonthly()))
}

// GetVolume godoc
//
//	@Summary		Completed volume per day
//	@Tags			Администрирование
//	@Security		BearerAuth
//	@Produce		json
//	@Param			days	query		int	false	"Days back, today included. 30 by default"
//	@Success		200		{array}		dto.DailyVolumeDTO
//	@Failure		400		{object}	utils.Response	"Invalid days"
//	@Router			/api/admin/volume [get]
func (h *AdminHandler) GetVolume(w http.ResponseWriter, r *http.Request) {
	days, err := utils.QueryInt(r, "days", 0)
	if err != nil || days < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid days")
		return
	}

	volumes, err := h.ledgerService.DailyVolume(r.Context(), days)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	response := make([]dto.DailyVolumeDTO, 0, len(volumes))
	for _, v := range volumes {
		response = append(response, dto.DailyVolumeDTO{
			Day:              v.Day.Format("2006-01-02"),
			TotalVolume:      v.TotalVolume,
			TransactionCount: v.TransactionCount,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

func respond(w http.ResponseWriter, tx *domain.Transaction, err error) {
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewTransactionResponse(*tx))
}
