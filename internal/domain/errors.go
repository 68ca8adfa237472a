package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrWalletExists            = errors.New("wallet already exists")
	ErrInactiveWallet          = errors.New("wallet is inactive")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrDailyLimitExceeded      = errors.New("daily limit exceeded")
	ErrMonthlyLimitExceeded    = errors.New("monthly limit exceeded")
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrInvalidTransactionState = errors.New("invalid transaction state")
	ErrConcurrencyConflict     = errors.New("concurrency conflict")
	ErrNotReversible           = errors.New("transaction is not reversible")
	ErrInvalidTransaction      = errors.New("invalid transaction")
	ErrSameParty               = errors.New("sender and receiver must differ")
	ErrIdempotencyKeyReused    = errors.New("idempotency key reused with a different request")

	ErrDuplicateReference      = errors.New("duplicate reference id")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrInvalidCurrency         = errors.New("unsupported currency")
	ErrInvalidLimits           = errors.New("limits must not be negative")
)

// LimitError is a validation rejection carrying the allowance left at the
// moment of the check. It unwraps to one of ErrInsufficientBalance,
// ErrDailyLimitExceeded or ErrMonthlyLimitExceeded.
type LimitError struct {
	Reason           error
	Requested        decimal.Decimal
	Balance          decimal.Decimal
	RemainingDaily   decimal.Decimal
	RemainingMonthly decimal.Decimal
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: requested %s, balance %s, remaining daily %s, remaining monthly %s",
		e.Reason, e.Requested.StringFixed(MoneyPlaces), e.Balance.StringFixed(MoneyPlaces),
		e.RemainingDaily.StringFixed(MoneyPlaces), e.RemainingMonthly.StringFixed(MoneyPlaces))
}

func (e *LimitError) Unwrap() error {
	return e.Reason
}
