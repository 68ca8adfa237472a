// Package limitservice decides whether a debit fits a wallet's balance and
// its remaining daily and monthly allowance.
package limitservice

import (
	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/shopspring/decimal"
)

type Decision struct {
	Allowed          bool
	Balance          decimal.Decimal
	Requested        decimal.Decimal
	RemainingDaily   decimal.Decimal
	RemainingMonthly decimal.Decimal
	// Reason is nil when Allowed.
	Reason error
}

// Err returns a *domain.LimitError for a rejected decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &domain.LimitError{
		Reason:           d.Reason,
		Requested:        d.Requested,
		Balance:          d.Balance,
		RemainingDaily:   d.RemainingDaily,
		RemainingMonthly: d.RemainingMonthly,
	}
}

// Evaluate expects period resets to be applied to wallet already. Reasons are
// checked in a fixed order: balance, then daily, then monthly.
func Evaluate(wallet domain.Wallet, amount decimal.Decimal) Decision {
	d := Decision{
		Balance:          wallet.Balance,
		Requested:        amount,
		RemainingDaily:   wallet.DailyLimit.Sub(wallet.DailySpent),
		RemainingMonthly: wallet.MonthlyLimit.Sub(wallet.MonthlySpent),
	}

	switch {
	case amount.GreaterThan(wallet.Balance):
		d.Reason = domain.ErrInsufficientBalance
	case amount.GreaterThan(d.RemainingDaily):
		d.Reason = domain.ErrDailyLimitExceeded
	case amount.GreaterThan(d.RemainingMonthly):
		d.Reason = domain.ErrMonthlyLimitExceeded
	default:
		d.Allowed = true
	}
	return d
}

// EvaluateBalance only checks the balance, for debits exempt from spend limits.
func EvaluateBalance(wallet domain.Wallet, amount decimal.Decimal) Decision {
	d := Decision{
		Balance:          wallet.Balance,
		Requested:        amount,
		RemainingDaily:   wallet.DailyLimit.Sub(wallet.DailySpent),
		RemainingMonthly: wallet.MonthlyLimit.Sub(wallet.MonthlySpent),
		Allowed:          !amount.GreaterThan(wallet.Balance),
	}
	if !d.Allowed {
		d.Reason = domain.ErrInsufficientBalance
	}
	return d
}
