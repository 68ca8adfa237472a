package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletledger/internal/domain"
)

type TransactionResponseDTO struct {
	ID                    int64                    `json:"id" example:"1001"`
	ReferenceID           string                   `json:"reference_id" example:"TRA1792058400000042"`
	IdempotencyKey        *string                  `json:"idempotency_key,omitempty"`
	Type                  domain.TransactionType   `json:"type" example:"transfer"`
	SenderID              *int64                   `json:"sender_id,omitempty" example:"42"`
	ReceiverID            *int64                   `json:"receiver_id,omitempty" example:"7"`
	Amount                decimal.Decimal          `json:"amount" swaggertype:"string" example:"20000.00"`
	Fee                   decimal.Decimal          `json:"fee" swaggertype:"string" example:"0.00"`
	Currency              domain.Currency          `json:"currency" example:"VND"`
	Status                domain.TransactionStatus `json:"status" example:"completed"`
	Description           *string                  `json:"description,omitempty"`
	Gateway               domain.Gateway           `json:"gateway" example:"internal"`
	GatewayTransactionID  *string                  `json:"gateway_transaction_id,omitempty"`
	FailureReason         *string                  `json:"failure_reason,omitempty"`
	ProcessedAt           *time.Time               `json:"processed_at,omitempty"`
	IsReversed            bool                     `json:"is_reversed"`
	ReversedBy            *int64                   `json:"reversed_by,omitempty"`
	ReversalOf            *int64                   `json:"reversal_of,omitempty"`
	SenderBalanceBefore   decimal.NullDecimal      `json:"sender_balance_before" swaggertype:"string"`
	SenderBalanceAfter    decimal.NullDecimal      `json:"sender_balance_after" swaggertype:"string"`
	ReceiverBalanceBefore decimal.NullDecimal      `json:"receiver_balance_before" swaggertype:"string"`
	ReceiverBalanceAfter  decimal.NullDecimal      `json:"receiver_balance_after" swaggertype:"string"`
	CreatedAt             time.Time                `json:"created_at" example:"2026-10-15T10:00:00Z"`
}

func NewTransactionResponse(tx domain.Transaction) TransactionResponseDTO {
	return TransactionResponseDTO{
		ID:                    tx.ID,
		ReferenceID:           tx.ReferenceID,
		IdempotencyKey:        tx.IdempotencyKey,
		Type:                  tx.Type,
		SenderID:              tx.SenderID,
		ReceiverID:            tx.ReceiverID,
		Amount:                tx.Amount,
		Fee:                   tx.Fee,
		Currency:              tx.Currency,
		Status:                tx.Status,
		Description:           tx.Description,
		Gateway:               tx.Gateway,
		GatewayTransactionID:  tx.GatewayTransactionID,
		FailureReason:         tx.FailureReason,
		ProcessedAt:           tx.ProcessedAt,
		IsReversed:            tx.IsReversed,
		ReversedBy:            tx.ReversedBy,
		ReversalOf:            tx.ReversalOf,
		SenderBalanceBefore:   tx.SenderBalanceBefore,
		SenderBalanceAfter:    tx.SenderBalanceAfter,
		ReceiverBalanceBefore: tx.ReceiverBalanceBefore,
		ReceiverBalanceAfter:  tx.ReceiverBalanceAfter,
		CreatedAt:             tx.CreatedAt,
	}
}

type HistoryResponseDTO struct {
	Items  []TransactionResponseDTO `json:"items"`
	Total  int64                    `json:"total" example:"57"`
	Limit  int                      `json:"limit" example:"20"`
	Offset int                      `json:"offset" example:"0"`
}

func NewHistoryResponse(items []domain.Transaction, total int64, limit, offset int) HistoryResponseDTO {
	out := HistoryResponseDTO{
		Items:  make([]TransactionResponseDTO, 0, len(items)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, tx := range items {
		out.Items = append(out.Items, NewTransactionResponse(tx))
	}
	return out
}

type TypeStatDTO struct {
	Type          domain.TransactionType `json:"type" example:"transfer"`
	Count         int64                  `json:"count" example:"12"`
	TotalAmount   decimal.Decimal        `json:"total_amount" swaggertype:"string" example:"240000.00"`
	AverageAmount decimal.Decimal        `json:"average_amount" swaggertype:"string" example:"20000.00"`
}

type DailyVolumeDTO struct {
	Day              string          `json:"day" example:"2026-10-15"`
	TotalVolume      decimal.Decimal `json:"total_volume" swaggertype:"string" example:"98000000.00"`
	TransactionCount int64           `json:"transaction_count" example:"311"`
}

// LimitErrorDTO is returned when a debit is refused by balance or limits.
type LimitErrorDTO struct {
	Error            string          `json:"error" example:"daily limit exceeded"`
	Balance          decimal.Decimal `json:"balance" swaggertype:"string" example:"150000.00"`
	RemainingDaily   decimal.Decimal `json:"remaining_daily" swaggertype:"string" example:"0.00"`
	RemainingMonthly decimal.Decimal `json:"remaining_monthly" swaggertype:"string" example:"900000000.00"`
}
