package transactions

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/dto"
	"github.com/GlebRadaev/walletledger/internal/handlers/httperr"
	"github.com/GlebRadaev/walletledger/internal/service/ledgerservice"
	"github.com/GlebRadaev/walletledger/pkg/auth"
	"github.com/GlebRadaev/walletledger/pkg/utils"
)

//go:generate mockgen -source=transactions.go -destination=mock_transactions.go -package=transactions Service Canceller

type Service interface {
	Get(ctx context.Context, id int64) (*domain.Transaction, error)
	GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)
	History(ctx context.Context, userID int64, page ledgerservice.Page) (*ledgerservice.History, error)
	Stats(ctx context.Context, userID int64, from, to time.Time) ([]domain.TypeStat, error)
}

type Canceller interface {
	Cancel(ctx context.Context, actorID, txID int64) (*domain.Transaction, error)
}

type TransactionHandler struct {
	ledgerService Service
	canceller     Canceller
}

func New(ledgerService Service, canceller Canceller) *TransactionHandler {
	return &TransactionHandler{
		ledgerService: ledgerService,
		canceller:     canceller,
	}
}

// GetTransactions godoc
//
//	@Summary		Transaction history
//	@Description	Transactions where the user is sender or receiver, newest first.
//	@Tags			Транзакции
//	@Security		BearerAuth
//	@Produce		json
//	@Param			limit	query		int	false	"Page size, 20 by default, at most 100"
//	@Param			offset	query		int	false	"Rows to skip"
//	@Success		200		{object}	dto.HistoryResponseDTO
//	@Failure		400		{object}	utils.Response	"Invalid paging"
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/transactions [get]
func (h *TransactionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	limit, err := utils.QueryInt(r, "limit", 0)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := utils.QueryInt(r, "offset", 0)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	history, err := h.ledgerService.History(r.Context(), userID, ledgerservice.Page{Limit: limit, Offset: offset})
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK,
		dto.NewHistoryResponse(history.Items, history.Total, history.Page.Limit, history.Page.Offset))
}

// GetStats godoc
//
//	@Summary		Per-type statistics
//	@Description	Count, total and average of completed transactions per type. Defaults to the last 30 days.
//	@Tags			Транзакции
//	@Security		BearerAuth
//	@Produce		json
//	@Param			from	query		string	false	"Period start, RFC3339"
//	@Param			to		query		string	false	"Period end, RFC3339"
//	@Success		200		{array}		dto.TypeStatDTO
//	@Failure		400		{object}	utils.Response	"Invalid period"
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/transactions/stats [get]
func (h *TransactionHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	from, err := queryTime(r, "from")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid from, expected RFC3339")
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid to, expected RFC3339")
		return
	}

	stats, err := h.ledgerService.Stats(r.Context(), userID, from, to)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	response := make([]dto.TypeStatDTO, 0, len(stats))
	for _, s := range stats {
		response = append(response, dto.TypeStatDTO{
			Type:          s.Type,
			Count:         s.Count,
			TotalAmount:   s.TotalAmount,
			AverageAmount: s.AverageAmount,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// GetTransaction godoc
//
//	@Summary		Get one transaction
//	@Description	Visible to its sender, its receiver and admins.
//	@Tags			Транзакции
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int	true	"Transaction id"
//	@Success		200	{object}	dto.TransactionResponseDTO
//	@Failure		400	{object}	utils.Response	"Invalid id"
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		404	{object}	utils.Response	"Transaction not found"
//	@Router			/api/transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathID(r, "id")
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	tx, err := h.visible(r.Context(), func(ctx context.Context) (*domain.Transaction, error) {
		return h.ledgerService.Get(ctx, id)
	})
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewTransactionResponse(*tx))
}

// GetByReference godoc
//
//	@Summary		Find a transaction by reference id
//	@Tags			Транзакции
//	@Security		BearerAuth
//	@Produce		json
//	@Param			reference	path		string	true	"Reference id"
//	@Success		200			{object}	dto.TransactionResponseDTO
//	@Failure		401			{object}	utils.Response	"User not authorized"
//	@Failure		404			{object}	utils.Response	"Transaction not found"
//	@Router			/api/transactions/reference/{reference} [get]
func (h *TransactionHandler) GetByReference(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	tx, err := h.visible(r.Context(), func(ctx context.Context) (*domain.Transaction, error) {
		return h.ledgerService.GetByReference(ctx, reference)
	})
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewTransactionResponse(*tx))
}

// CancelTransaction godoc
//
//	@Summary		Cancel a transaction
//	@Description	Only transactions that have not started committing can be cancelled. Completed ones must be reversed.
//	@Tags			Транзакции
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		int	true	"Transaction id"
//	@Success		200	{object}	dto.TransactionResponseDTO
//	@Failure		400	{object}	utils.Response	"Invalid id"
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		404	{object}	utils.Response	"Transaction not found"
//	@Failure		409	{object}	utils.Response	"Transaction can no longer be cancelled"
//	@Router			/api/transactions/{id}/cancel [post]
func (h *TransactionHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := utils.PathID(r, "id")
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	if _, err := h.visible(r.Context(), func(ctx context.Context) (*domain.Transaction, error) {
		return h.ledgerService.Get(ctx, id)
	}); err != nil {
		httperr.Write(w, err)
		return
	}

	tx, err := h.canceller.Cancel(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewTransactionResponse(*tx))
}

// visible loads a transaction and hides it from users who are not a party to it.
func (h *TransactionHandler) visible(
	ctx context.Context, load func(context.Context) (*domain.Transaction, error),
) (*domain.Transaction, error) {
	tx, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if !auth.IsAdmin(ctx) && !tx.Involves(auth.UserID(ctx)) {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, nil
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
