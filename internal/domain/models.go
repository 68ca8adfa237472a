package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyVND Currency = "VND"
	CurrencyUSD Currency = "USD"
)

func (c Currency) Valid() bool {
	return c == CurrencyVND || c == CurrencyUSD
}

type Wallet struct {
	ID                int64           `db:"id"`
	UserID            int64           `db:"user_id"`
	Balance           decimal.Decimal `db:"balance"`
	Currency          Currency        `db:"currency"`
	IsActive          bool            `db:"is_active"`
	DailyLimit        decimal.Decimal `db:"daily_limit"`
	MonthlyLimit      decimal.Decimal `db:"monthly_limit"`
	DailySpent        decimal.Decimal `db:"daily_spent"`
	MonthlySpent      decimal.Decimal `db:"monthly_spent"`
	LastDailyReset    time.Time       `db:"last_daily_reset"`
	LastMonthlyReset  time.Time       `db:"last_monthly_reset"`
	LastTransactionAt *time.Time      `db:"last_transaction_at"`
	Version           int64           `db:"version"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// AvailableDaily is the part of the daily limit not spent yet, never negative.
func (w Wallet) AvailableDaily() decimal.Decimal {
	return decimal.Max(decimal.Zero, w.DailyLimit.Sub(w.DailySpent))
}

func (w Wallet) AvailableMonthly() decimal.Decimal {
	return decimal.Max(decimal.Zero, w.MonthlyLimit.Sub(w.MonthlySpent))
}

type TransactionType string

const (
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypeWithdraw TransactionType = "withdraw"
	TransactionTypePayment  TransactionType = "payment"
	TransactionTypeRefund   TransactionType = "refund"
	TransactionTypeFee      TransactionType = "fee"
	TransactionTypeBonus    TransactionType = "bonus"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypeDeposit, TransactionTypeWithdraw,
		TransactionTypePayment, TransactionTypeRefund, TransactionTypeFee, TransactionTypeBonus:
		return true
	}
	return false
}

// RequiresSender reports whether a transaction of this type must name a sender.
func (t TransactionType) RequiresSender() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypePayment, TransactionTypeWithdraw, TransactionTypeFee:
		return true
	}
	return false
}

// RequiresReceiver reports whether a transaction of this type must name a receiver.
func (t TransactionType) RequiresReceiver() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypePayment, TransactionTypeDeposit,
		TransactionTypeBonus, TransactionTypeRefund:
		return true
	}
	return false
}

// Limited reports whether the sender side of this type counts against spend limits.
func (t TransactionType) Limited() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypePayment, TransactionTypeWithdraw:
		return true
	}
	return false
}

type TransactionStatus string

const (
	// StatusPending запись создана, деньги не двигались;
	StatusPending TransactionStatus = "pending"
	// StatusProcessing идёт фиксация изменений кошельков;
	StatusProcessing TransactionStatus = "processing"
	// StatusCompleted изменения кошельков зафиксированы;
	StatusCompleted TransactionStatus = "completed"
	// StatusFailed операция отклонена или не смогла зафиксироваться;
	StatusFailed TransactionStatus = "failed"
	// StatusCancelled операция отменена до фиксации.
	StatusCancelled TransactionStatus = "cancelled"
)

type Gateway string

const (
	GatewayInternal Gateway = "internal"
	GatewayVNPay    Gateway = "vnpay"
	GatewayMomo     Gateway = "momo"
	GatewayBank     Gateway = "bank"
	GatewayManual   Gateway = "manual"
)

func (g Gateway) Valid() bool {
	switch g {
	case GatewayInternal, GatewayVNPay, GatewayMomo, GatewayBank, GatewayManual:
		return true
	}
	return false
}

type Transaction struct {
	ID                    int64               `db:"id"`
	ReferenceID           string              `db:"reference_id"`
	IdempotencyKey        *string             `db:"idempotency_key"`
	Type                  TransactionType     `db:"transaction_type"`
	SenderID              *int64              `db:"sender_id"`
	ReceiverID            *int64              `db:"receiver_id"`
	Amount                decimal.Decimal     `db:"amount"`
	Fee                   decimal.Decimal     `db:"fee"`
	Currency              Currency            `db:"currency"`
	Status                TransactionStatus   `db:"status"`
	Description           *string             `db:"description"`
	Gateway               Gateway             `db:"gateway"`
	GatewayTransactionID  *string             `db:"gateway_transaction_id"`
	FailureReason         *string             `db:"failure_reason"`
	ProcessedAt           *time.Time          `db:"processed_at"`
	IsReversed            bool                `db:"is_reversed"`
	ReversedBy            *int64              `db:"reversed_by"`
	ReversalOf            *int64              `db:"reversal_of"`
	SenderBalanceBefore   decimal.NullDecimal `db:"sender_balance_before"`
	SenderBalanceAfter    decimal.NullDecimal `db:"sender_balance_after"`
	ReceiverBalanceBefore decimal.NullDecimal `db:"receiver_balance_before"`
	ReceiverBalanceAfter  decimal.NullDecimal `db:"receiver_balance_after"`
	CreatedAt             time.Time           `db:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at"`
}

// Total is what the sender side pays: amount plus fee.
func (t Transaction) Total() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

func (t Transaction) Involves(userID int64) bool {
	return (t.SenderID != nil && *t.SenderID == userID) || (t.ReceiverID != nil && *t.ReceiverID == userID)
}

// Snapshots are the wallet balances around a committed transaction.
type Snapshots struct {
	SenderBefore   decimal.NullDecimal
	SenderAfter    decimal.NullDecimal
	ReceiverBefore decimal.NullDecimal
	ReceiverAfter  decimal.NullDecimal
}

type TypeStat struct {
	Type          TransactionType `db:"transaction_type"`
	Count         int64           `db:"count"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	AverageAmount decimal.Decimal `db:"average_amount"`
}

type DailyVolume struct {
	Day              time.Time       `db:"day"`
	TotalVolume      decimal.Decimal `db:"total_volume"`
	TransactionCount int64           `db:"transaction_count"`
}

type AuditRecord struct {
	ID         int64          `db:"id"`
	ActorID    int64          `db:"actor_id"`
	Action     string         `db:"action"`
	ObjectType string         `db:"object_type"`
	ObjectID   int64          `db:"object_id"`
	Payload    map[string]any `db:"payload"`
	CreatedAt  time.Time      `db:"created_at"`
}
