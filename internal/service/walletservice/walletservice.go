package walletservice

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/pg"
	"github.com/GlebRadaev/walletledger/internal/service/limitservice"
)

//go:generate mockgen -source=walletservice.go -destination=mock_walletservice.go -package=walletservice Repo Auditor

type Repo interface {
	GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error)
	Create(ctx context.Context, wallet *domain.Wallet) (*domain.Wallet, error)
	LockByIDs(ctx context.Context, ids []int64) ([]domain.Wallet, error)
	Update(ctx context.Context, wallet *domain.Wallet) (*domain.Wallet, error)
	SetActive(ctx context.Context, userID int64, active bool) (*domain.Wallet, error)
	UpdateLimits(ctx context.Context, userID int64, daily, monthly decimal.Decimal) (*domain.Wallet, error)
}

type Auditor interface {
	Record(ctx context.Context, actorID int64, action, objectType string, objectID int64, payload map[string]any) error
}

// Defaults are applied to newly created wallets.
type Defaults struct {
	Currency     domain.Currency
	DailyLimit   decimal.Decimal
	MonthlyLimit decimal.Decimal
}

type Summary struct {
	Wallet           domain.Wallet
	AvailableDaily   decimal.Decimal
	AvailableMonthly decimal.Decimal
}

type Service struct {
	repo      Repo
	txManager pg.TXManager
	auditor   Auditor
	defaults  Defaults
	loc       *time.Location
	now       func() time.Time
}

func New(repo Repo, txManager pg.TXManager, auditor Auditor, defaults Defaults, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:      repo,
		txManager: txManager,
		auditor:   auditor,
		defaults:  defaults,
		loc:       loc,
		now:       time.Now,
	}
}

func (s *Service) GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	wallet, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		zap.L().Error("failed to get wallet", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	return wallet, nil
}

func (s *Service) CreateWallet(ctx context.Context, userID int64, currency domain.Currency) (*domain.Wallet, error) {
	if currency == "" {
		currency = s.defaults.Currency
	}
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, currency)
	}

	now := s.now().In(s.loc)
	wallet, err := s.repo.Create(ctx, &domain.Wallet{
		UserID:           userID,
		Currency:         currency,
		IsActive:         true,
		DailyLimit:       s.defaults.DailyLimit,
		MonthlyLimit:     s.defaults.MonthlyLimit,
		LastDailyReset:   startOfDay(now),
		LastMonthlyReset: startOfMonth(now),
	})
	if err != nil {
		zap.L().Error("failed to create wallet", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	s.audit(ctx, userID, "wallet.create", wallet, map[string]any{
		"currency":      wallet.Currency,
		"daily_limit":   wallet.DailyLimit.StringFixed(domain.MoneyPlaces),
		"monthly_limit": wallet.MonthlyLimit.StringFixed(domain.MoneyPlaces),
	})
	return wallet, nil
}

// Lock takes row locks on the given wallets in ascending id order. It must run
// inside a transaction started by the TXManager.
func (s *Service) Lock(ctx context.Context, walletIDs ...int64) ([]domain.Wallet, error) {
	ids := slices.Clone(walletIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	wallets, err := s.repo.LockByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(wallets) != len(ids) {
		return nil, domain.ErrWalletNotFound
	}
	return wallets, nil
}

// ApplyDelta adds delta to the wallet balance and spendDelta to its period
// counters as one read-modify-write on the locked row. The wallet is
// re-validated against the locked snapshot, so checks made earlier on a stale
// read cannot let a debit through.
func (s *Service) ApplyDelta(ctx context.Context, walletID int64, delta, spendDelta decimal.Decimal) (*domain.Wallet, error) {
	var updated *domain.Wallet
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		locked, err := s.repo.LockByIDs(ctx, []int64{walletID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return domain.ErrWalletNotFound
		}

		wallet := s.ResetPeriodsIfDue(locked[0])
		if !wallet.IsActive {
			return domain.ErrInactiveWallet
		}

		if spendDelta.IsPositive() {
			if err := limitservice.Evaluate(wallet, spendDelta).Err(); err != nil {
				return err
			}
		}
		balance := domain.RoundMoney(wallet.Balance.Add(delta))
		if balance.IsNegative() {
			return limitservice.EvaluateBalance(wallet, delta.Neg()).Err()
		}

		now := s.now()
		wallet.Balance = balance
		wallet.DailySpent = domain.RoundMoney(wallet.DailySpent.Add(spendDelta))
		wallet.MonthlySpent = domain.RoundMoney(wallet.MonthlySpent.Add(spendDelta))
		wallet.LastTransactionAt = &now

		updated, err = s.repo.Update(ctx, &wallet)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ResetPeriodsIfDue zeroes the spend counters whose period has rolled over.
// It does not persist anything: the result is written by the next update.
func (s *Service) ResetPeriodsIfDue(wallet domain.Wallet) domain.Wallet {
	return ResetPeriods(wallet, s.now(), s.loc)
}

// ResetPeriods is ResetPeriodsIfDue with an explicit clock and location.
func ResetPeriods(wallet domain.Wallet, now time.Time, loc *time.Location) domain.Wallet {
	now = now.In(loc)
	if day := startOfDay(now); wallet.LastDailyReset.Before(day) {
		wallet.DailySpent = decimal.Zero
		wallet.LastDailyReset = day
	}
	if month := startOfMonth(now); wallet.LastMonthlyReset.Before(month) {
		wallet.MonthlySpent = decimal.Zero
		wallet.LastMonthlyReset = month
	}
	return wallet
}

func (s *Service) Activate(ctx context.Context, actorID, userID int64) (*domain.Wallet, error) {
	return s.setActive(ctx, actorID, userID, true)
}

// Deactivate blocks every further movement on the wallet. Wallets are never deleted.
func (s *Service) Deactivate(ctx context.Context, actorID, userID int64) (*domain.Wallet, error) {
	return s.setActive(ctx, actorID, userID, false)
}

// lockOwned locks the wallet of userID and returns it as it was before the
// caller's change.
func (s *Service) lockOwned(ctx context.Context, userID int64) (*domain.Wallet, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	locked, err := s.repo.LockByIDs(ctx, []int64{wallet.ID})
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, domain.ErrWalletNotFound
	}
	return &locked[0], nil
}

func (s *Service) setActive(ctx context.Context, actorID, userID int64, active bool) (*domain.Wallet, error) {
	var before, wallet *domain.Wallet
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		var err error
		if before, err = s.lockOwned(ctx, userID); err != nil {
			return err
		}
		if wallet, err = s.repo.SetActive(ctx, userID, active); err != nil {
			return err
		}
		if wallet == nil {
			return domain.ErrWalletNotFound
		}
		return nil
	})
	if err != nil {
		zap.L().Error("failed to change wallet state", zap.Int64("user_id", userID), zap.Bool("active", active), zap.Error(err))
		return nil, err
	}
	zap.L().Info("wallet state changed", zap.Int64("user_id", userID), zap.Bool("active", active))

	action := "wallet.deactivate"
	if active {
		action = "wallet.activate"
	}
	s.audit(ctx, actorID, action, wallet, map[string]any{
		"was_active": before.IsActive,
		"is_active":  wallet.IsActive,
	})
	return wallet, nil
}

func (s *Service) SetLimits(ctx context.Context, actorID, userID int64, daily, monthly decimal.Decimal) (*domain.Wallet, error) {
	if daily.IsNegative() || monthly.IsNegative() {
		return nil, domain.ErrInvalidLimits
	}

	var before, wallet *domain.Wallet
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		var err error
		if before, err = s.lockOwned(ctx, userID); err != nil {
			return err
		}
		wallet, err = s.repo.UpdateLimits(ctx, userID, domain.RoundMoney(daily), domain.RoundMoney(monthly))
		if err != nil {
			return err
		}
		if wallet == nil {
			return domain.ErrWalletNotFound
		}
		return nil
	})
	if err != nil {
		zap.L().Error("failed to update limits", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.audit(ctx, actorID, "wallet.limits", wallet, map[string]any{
		"old_daily_limit":   before.DailyLimit.StringFixed(domain.MoneyPlaces),
		"old_monthly_limit": before.MonthlyLimit.StringFixed(domain.MoneyPlaces),
		"daily_limit":       wallet.DailyLimit.StringFixed(domain.MoneyPlaces),
		"monthly_limit":     wallet.MonthlyLimit.StringFixed(domain.MoneyPlaces),
	})
	return wallet, nil
}

// audit records a committed wallet change. The change stands even if the
// record cannot be written.
func (s *Service) audit(ctx context.Context, actorID int64, action string, wallet *domain.Wallet, payload map[string]any) {
	payload["user_id"] = wallet.UserID
	payload["version"] = wallet.Version
	if err := s.auditor.Record(ctx, actorID, action, "wallet", wallet.ID, payload); err != nil {
		zap.L().Warn("failed to audit wallet change", zap.Int64("user_id", wallet.UserID), zap.String("action", action), zap.Error(err))
	}
}

// Summary reports the wallet together with what is left of its allowances
// as of now, counting period resets that have not been persisted yet.
func (s *Service) Summary(ctx context.Context, userID int64) (*Summary, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := s.ResetPeriodsIfDue(*wallet)
	return &Summary{
		Wallet:           current,
		AvailableDaily:   current.AvailableDaily(),
		AvailableMonthly: current.AvailableMonthly(),
	}, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
