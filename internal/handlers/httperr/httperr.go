// Package httperr maps domain errors to HTTP responses.
package httperr

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/dto"
	"github.com/GlebRadaev/walletledger/pkg/utils"
)

var statuses = []struct {
	err    error
	status int
}{
	{domain.ErrWalletNotFound, http.StatusNotFound},
	{domain.ErrTransactionNotFound, http.StatusNotFound},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired},
	{domain.ErrDailyLimitExceeded, http.StatusUnprocessableEntity},
	{domain.ErrMonthlyLimitExceeded, http.StatusUnprocessableEntity},
	{domain.ErrInactiveWallet, http.StatusUnprocessableEntity},
	{domain.ErrCurrencyMismatch, http.StatusUnprocessableEntity},
	{domain.ErrInvalidTransactionState, http.StatusConflict},
	{domain.ErrNotReversible, http.StatusConflict},
	{domain.ErrWalletExists, http.StatusConflict},
	{domain.ErrIdempotencyKeyReused, http.StatusConflict},
	{domain.ErrConcurrencyConflict, http.StatusServiceUnavailable},
	{domain.ErrInvalidTransaction, http.StatusBadRequest},
	{domain.ErrSameParty, http.StatusBadRequest},
	{domain.ErrInvalidCurrency, http.StatusBadRequest},
	{domain.ErrInvalidLimits, http.StatusBadRequest},
}

// Status returns the HTTP status for err, 500 for anything unknown.
func Status(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

func Write(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
		utils.RespondWithError(w, status, "Internal server error")
		return
	}

	var limitErr *domain.LimitError
	if errors.As(err, &limitErr) {
		utils.RespondWithJSON(w, status, dto.LimitErrorDTO{
			Error:            limitErr.Reason.Error(),
			Balance:          limitErr.Balance,
			RemainingDaily:   limitErr.RemainingDaily,
			RemainingMonthly: limitErr.RemainingMonthly,
		})
		return
	}
	utils.RespondWithError(w, status, err.Error())
}
