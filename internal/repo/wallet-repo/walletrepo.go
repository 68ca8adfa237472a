package walletrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/pg"
)

const columns = `id, user_id, balance, currency, is_active, daily_limit, monthly_limit,
	daily_spent, monthly_spent, last_daily_reset, last_monthly_reset, last_transaction_at,
	version, created_at, updated_at`

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func scan(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.IsActive, &w.DailyLimit, &w.MonthlyLimit,
		&w.DailySpent, &w.MonthlySpent, &w.LastDailyReset, &w.LastMonthlyReset, &w.LastTransactionAt,
		&w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	query := `SELECT ` + columns + ` FROM wallets WHERE user_id = $1`
	w, err := scan(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("failed to get wallet by user", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return w, nil
}

func (r *Repository) Create(ctx context.Context, wallet *domain.Wallet) (*domain.Wallet, error) {
	query := `
		INSERT INTO wallets (user_id, currency, daily_limit, monthly_limit, last_daily_reset, last_monthly_reset)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + columns
	w, err := scan(r.db.QueryRow(ctx, query,
		wallet.UserID, wallet.Currency, wallet.DailyLimit, wallet.MonthlyLimit,
		wallet.LastDailyReset, wallet.LastMonthlyReset,
	))
	if err != nil {
		if pg.IsUniqueViolation(err, "") {
			return nil, domain.ErrWalletExists
		}
		zap.L().Error("failed to create wallet", zap.Int64("user_id", wallet.UserID), zap.Error(err))
		return nil, err
	}
	return w, nil
}

// LockByIDs takes row locks in ascending id order, so two transfers touching
// the same pair of wallets always lock them in the same sequence.
func (r *Repository) LockByIDs(ctx context.Context, ids []int64) ([]domain.Wallet, error) {
	query := `SELECT ` + columns + ` FROM wallets WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		zap.L().Error("failed to lock wallets", zap.Int64s("ids", ids), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scan(rows)
		if err != nil {
			zap.L().Error("failed to scan locked wallet", zap.Error(err))
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("failed to iterate locked wallets", zap.Error(err))
		return nil, err
	}
	return wallets, nil
}

// Update writes the mutable money fields of wallet if its version is still
// current and bumps the version. A stale version yields ErrConcurrencyConflict.
func (r *Repository) Update(ctx context.Context, wallet *domain.Wallet) (*domain.Wallet, error) {
	query := `
		UPDATE wallets
		SET balance = $1, daily_spent = $2, monthly_spent = $3,
			last_daily_reset = $4, last_monthly_reset = $5, last_transaction_at = $6,
			version = version + 1, updated_at = NOW()
		WHERE id = $7 AND version = $8
		RETURNING ` + columns
	w, err := scan(r.db.QueryRow(ctx, query,
		wallet.Balance, wallet.DailySpent, wallet.MonthlySpent,
		wallet.LastDailyReset, wallet.LastMonthlyReset, wallet.LastTransactionAt,
		wallet.ID, wallet.Version,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConcurrencyConflict
		}
		zap.L().Error("failed to update wallet", zap.Int64("wallet_id", wallet.ID), zap.Error(err))
		return nil, err
	}
	return w, nil
}

func (r *Repository) SetActive(ctx context.Context, userID int64, active bool) (*domain.Wallet, error) {
	query := `
		UPDATE wallets
		SET is_active = $1, version = version + 1, updated_at = NOW()
		WHERE user_id = $2
		RETURNING ` + columns
	w, err := scan(r.db.QueryRow(ctx, query, active, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("failed to change wallet activity", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return w, nil
}

func (r *Repository) UpdateLimits(ctx context.Context, userID int64, daily, monthly decimal.Decimal) (*domain.Wallet, error) {
	query := `
		UPDATE wallets
		SET daily_limit = $1, monthly_limit = $2, version = version + 1, updated_at = NOW()
		WHERE user_id = $3
		RETURNING ` + columns
	w, err := scan(r.db.QueryRow(ctx, query, daily, monthly, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("failed to update wallet limits", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return w, nil
}
