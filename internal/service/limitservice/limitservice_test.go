package limitservice

import (
	"errors"
	"testing"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func wallet(balance, dailyLimit, dailySpent, monthlyLimit, monthlySpent string) domain.Wallet {
	return domain.Wallet{
		Balance:      d(balance),
		DailyLimit:   d(dailyLimit),
		DailySpent:   d(dailySpent),
		MonthlyLimit: d(monthlyLimit),
		MonthlySpent: d(monthlySpent),
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name            string
		wallet          domain.Wallet
		amount          string
		expectedAllowed bool
		expectedReason  error
		expectedDaily   string
		expectedMonthly string
	}{
		{
			name:            "Fits everything",
			wallet:          wallet("100000", "50000", "0", "1000000", "0"),
			amount:          "30000",
			expectedAllowed: true,
			expectedDaily:   "50000",
			expectedMonthly: "1000000",
		},
		{
			name:            "Exactly the remaining daily allowance",
			wallet:          wallet("100000", "50000", "20000", "1000000", "0"),
			amount:          "30000",
			expectedAllowed: true,
			expectedDaily:   "30000",
			expectedMonthly: "1000000",
		},
		{
			name:            "Insufficient balance wins over limits",
			wallet:          wallet("500000", "50000", "0", "100000", "0"),
			amount:          "2000000",
			expectedAllowed: false,
			expectedReason:  domain.ErrInsufficientBalance,
			expectedDaily:   "50000",
			expectedMonthly: "100000",
		},
		{
			name:            "Daily limit exceeded",
			wallet:          wallet("100000", "50000", "30000", "1000000", "30000"),
			amount:          "30000",
			expectedAllowed: false,
			expectedReason:  domain.ErrDailyLimitExceeded,
			expectedDaily:   "20000",
			expectedMonthly: "970000",
		},
		{
			name:            "Monthly limit exceeded",
			wallet:          wallet("100000", "50000", "0", "60000", "50000"),
			amount:          "20000",
			expectedAllowed: false,
			expectedReason:  domain.ErrMonthlyLimitExceeded,
			expectedDaily:   "50000",
			expectedMonthly: "10000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Evaluate(tt.wallet, d(tt.amount))

			assert.Equal(t, tt.expectedAllowed, decision.Allowed)
			assert.Equal(t, tt.expectedReason, decision.Reason)
			assert.True(t, d(tt.expectedDaily).Equal(decision.RemainingDaily), "remaining daily %s", decision.RemainingDaily)
			assert.True(t, d(tt.expectedMonthly).Equal(decision.RemainingMonthly), "remaining monthly %s", decision.RemainingMonthly)

			if tt.expectedAllowed {
				assert.NoError(t, decision.Err())
				return
			}
			err := decision.Err()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expectedReason))

			var limitErr *domain.LimitError
			require.True(t, errors.As(err, &limitErr))
			assert.True(t, d(tt.amount).Equal(limitErr.Requested))
		})
	}
}

func TestEvaluateBalance(t *testing.T) {
	w := wallet("1000", "10", "10", "10", "10")

	assert.True(t, EvaluateBalance(w, d("1000")).Allowed)

	decision := EvaluateBalance(w, d("1000.01"))
	assert.False(t, decision.Allowed)
	assert.ErrorIs(t, decision.Err(), domain.ErrInsufficientBalance)
}
