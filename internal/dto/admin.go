package dto

import (
	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletledger/internal/domain"
)

// CreditRequestDTO funds a wallet from outside: deposit, bonus or refund.
type CreditRequestDTO struct {
	UserID               int64           `json:"user_id" example:"42"`
	SenderID             *int64          `json:"sender_id,omitempty" example:"900"`
	Amount               decimal.Decimal `json:"amount" swaggertype:"string" example:"1000000"`
	Currency             domain.Currency `json:"currency,omitempty" example:"VND"`
	Gateway              domain.Gateway  `json:"gateway,omitempty" example:"vnpay"`
	GatewayTransactionID *string         `json:"gateway_transaction_id,omitempty" example:"14022861"`
	Description          *string         `json:"description,omitempty"`
	IdempotencyKey       *string         `json:"idempotency_key,omitempty"`
}

type FeeRequestDTO struct {
	UserID         int64           `json:"user_id" example:"42"`
	Amount         decimal.Decimal `json:"amount" swaggertype:"string" example:"5500"`
	Currency       domain.Currency `json:"currency,omitempty" example:"VND"`
	Description    *string         `json:"description,omitempty" example:"monthly maintenance"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
}

type LimitsRequestDTO struct {
	DailyLimit   decimal.Decimal `json:"daily_limit" swaggertype:"string" example:"50000000"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit" swaggertype:"string" example:"1000000000"`
}
