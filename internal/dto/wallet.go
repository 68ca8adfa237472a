package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletledger/internal/domain"
)

type CreateWalletRequestDTO struct {
	Currency domain.Currency `json:"currency" example:"VND"`
}

type WalletResponseDTO struct {
	UserID            int64           `json:"user_id" example:"42"`
	Balance           decimal.Decimal `json:"balance" swaggertype:"string" example:"150000.00"`
	Currency          domain.Currency `json:"currency" example:"VND"`
	IsActive          bool            `json:"is_active" example:"true"`
	DailyLimit        decimal.Decimal `json:"daily_limit" swaggertype:"string" example:"50000000.00"`
	MonthlyLimit      decimal.Decimal `json:"monthly_limit" swaggertype:"string" example:"1000000000.00"`
	DailySpent        decimal.Decimal `json:"daily_spent" swaggertype:"string" example:"20000.00"`
	MonthlySpent      decimal.Decimal `json:"monthly_spent" swaggertype:"string" example:"20000.00"`
	AvailableDaily    decimal.Decimal `json:"available_daily" swaggertype:"string" example:"49980000.00"`
	AvailableMonthly  decimal.Decimal `json:"available_monthly" swaggertype:"string" example:"999980000.00"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty" example:"2026-10-15T10:00:00Z"`
}

func NewWalletResponse(w domain.Wallet, availableDaily, availableMonthly decimal.Decimal) WalletResponseDTO {
	return WalletResponseDTO{
		UserID:            w.UserID,
		Balance:           w.Balance.Round(domain.MoneyPlaces),
		Currency:          w.Currency,
		IsActive:          w.IsActive,
		DailyLimit:        w.DailyLimit,
		MonthlyLimit:      w.MonthlyLimit,
		DailySpent:        w.DailySpent,
		MonthlySpent:      w.MonthlySpent,
		AvailableDaily:    availableDaily,
		AvailableMonthly:  availableMonthly,
		LastTransactionAt: w.LastTransactionAt,
	}
}

type TransferRequestDTO struct {
	ReceiverID     int64           `json:"receiver_id" example:"7"`
	Amount         decimal.Decimal `json:"amount" swaggertype:"string" example:"20000"`
	Fee            decimal.Decimal `json:"fee" swaggertype:"string" example:"0"`
	Currency       domain.Currency `json:"currency,omitempty" example:"VND"`
	Description    *string         `json:"description,omitempty" example:"dinner"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty" example:"c1b7d0c4-6f3e-4f55-9f43-8ad1f1f9a2d1"`
}

type PayRequestDTO struct {
	MerchantID     int64           `json:"merchant_id" example:"900"`
	Amount         decimal.Decimal `json:"amount" swaggertype:"string" example:"125000"`
	Fee            decimal.Decimal `json:"fee" swaggertype:"string" example:"0"`
	Currency       domain.Currency `json:"currency,omitempty" example:"VND"`
	Description    *string         `json:"description,omitempty" example:"order #1182"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
}

type WithdrawRequestDTO struct {
	Amount               decimal.Decimal `json:"amount" swaggertype:"string" example:"500000"`
	Fee                  decimal.Decimal `json:"fee" swaggertype:"string" example:"1100"`
	Currency             domain.Currency `json:"currency,omitempty" example:"VND"`
	Gateway              domain.Gateway  `json:"gateway" example:"bank"`
	GatewayTransactionID *string         `json:"gateway_transaction_id,omitempty"`
	Description          *string         `json:"description,omitempty"`
	IdempotencyKey       *string         `json:"idempotency_key,omitempty"`
}
