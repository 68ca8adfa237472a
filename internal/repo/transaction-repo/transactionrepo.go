package transactionrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/pg"
)

const (
	referenceConstraint   = "transactions_reference_id_key"
	idempotencyConstraint = "transactions_idempotency_key_idx"
)

const columns = `id, reference_id, idempotency_key, transaction_type, sender_id, receiver_id,
	amount, fee, currency, status, description, gateway, gateway_transaction_id,
	failure_reason, processed_at, is_reversed, reversed_by, reversal_of,
	sender_balance_before, sender_balance_after, receiver_balance_before, receiver_balance_after,
	created_at, updated_at`

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func scan(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.ReferenceID, &t.IdempotencyKey, &t.Type, &t.SenderID, &t.ReceiverID,
		&t.Amount, &t.Fee, &t.Currency, &t.Status, &t.Description, &t.Gateway, &t.GatewayTransactionID,
		&t.FailureReason, &t.ProcessedAt, &t.IsReversed, &t.ReversedBy, &t.ReversalOf,
		&t.SenderBalanceBefore, &t.SenderBalanceAfter, &t.ReceiverBalanceBefore, &t.ReceiverBalanceAfter,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collect(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*domain.Transaction, error) {
	t, err := scan(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// Create inserts a pending transaction. Unique violations on the reference id
// and on the idempotency index are reported as domain errors so the caller can
// retry or replay.
func (r *Repository) Create(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	query := `
		INSERT INTO transactions (reference_id, idempotency_key, transaction_type, sender_id, receiver_id,
			amount, fee, currency, status, description, gateway, gateway_transaction_id, reversal_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + columns
	t, err := scan(r.db.QueryRow(ctx, query,
		tx.ReferenceID, tx.IdempotencyKey, tx.Type, tx.SenderID, tx.ReceiverID,
		tx.Amount, tx.Fee, tx.Currency, tx.Status, tx.Description, tx.Gateway, tx.GatewayTransactionID, tx.ReversalOf,
	))
	if err != nil {
		switch {
		case pg.IsUniqueViolation(err, referenceConstraint):
			return nil, domain.ErrDuplicateReference
		case pg.IsUniqueViolation(err, idempotencyConstraint):
			return nil, domain.ErrDuplicateIdempotencyKey
		}
		zap.L().Error("failed to create transaction", zap.String("reference_id", tx.ReferenceID), zap.Error(err))
		return nil, err
	}
	return t, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	t, err := r.getOne(ctx, `SELECT `+columns+` FROM transactions WHERE id = $1`, id)
	if err != nil {
		zap.L().Error("failed to get transaction", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return t, nil
}

func (r *Repository) GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	t, err := r.getOne(ctx, `SELECT `+columns+` FROM transactions WHERE reference_id = $1`, referenceID)
	if err != nil {
		zap.L().Error("failed to get transaction by reference", zap.String("reference_id", referenceID), zap.Error(err))
		return nil, err
	}
	return t, nil
}

// FindByIdempotencyKey returns the oldest non-failed transaction that either
// carries key in the idempotency scope of user scope, or has key as its
// reference id and scope as one of its parties.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, scope int64, key string) (*domain.Transaction, error) {
	query := `SELECT ` + columns + ` FROM transactions
		WHERE status <> 'failed' AND (
			(idempotency_key = $2 AND COALESCE(sender_id, receiver_id) = $1)
			OR (reference_id = $2 AND (sender_id = $1 OR receiver_id = $1)))
		ORDER BY id LIMIT 1`
	t, err := r.getOne(ctx, query, scope, key)
	if err != nil {
		zap.L().Error("failed to find transaction by idempotency key",
			zap.Int64("scope", scope), zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return t, nil
}

// UpdateStatus moves the transaction to status only if its current status is
// one of from. It returns nil, nil when no row matched.
func (r *Repository) UpdateStatus(
	ctx context.Context, id int64, status domain.TransactionStatus, from []domain.TransactionStatus, failureReason *string,
) (*domain.Transaction, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	query := `
		UPDATE transactions
		SET status = $1, failure_reason = COALESCE($2, failure_reason), updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
		RETURNING ` + columns
	t, err := r.getOne(ctx, query, status, failureReason, id, allowed)
	if err != nil {
		zap.L().Error("failed to update transaction status",
			zap.Int64("id", id), zap.String("status", string(status)), zap.Error(err))
		return nil, err
	}
	return t, nil
}

// Complete stores the balance snapshots of a processing transaction and marks
// it completed. It returns nil, nil when the row is not processing.
func (r *Repository) Complete(ctx context.Context, id int64, s domain.Snapshots) (*domain.Transaction, error) {
	query := `
		UPDATE transactions
		SET status = 'completed', processed_at = NOW(), updated_at = NOW(),
			sender_balance_before = $1, sender_balance_after = $2,
			receiver_balance_before = $3, receiver_balance_after = $4
		WHERE id = $5 AND status = 'processing'
		RETURNING ` + columns
	t, err := r.getOne(ctx, query, s.SenderBefore, s.SenderAfter, s.ReceiverBefore, s.ReceiverAfter, id)
	if err != nil {
		zap.L().Error("failed to complete transaction", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	return t, nil
}

// MarkReversed links a completed transaction to its reversal. It reports false
// when the original is not completed or already reversed.
func (r *Repository) MarkReversed(ctx context.Context, id, reversedBy int64) (bool, error) {
	query := `
		UPDATE transactions
		SET is_reversed = TRUE, reversed_by = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'completed' AND is_reversed = FALSE`
	tag, err := r.db.Exec(ctx, query, reversedBy, id)
	if err != nil {
		zap.L().Error("failed to mark transaction reversed", zap.Int64("id", id), zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns a page of the transactions the user is a party to,
// newest first, with the total count.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE sender_id = $1 OR receiver_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		zap.L().Error("failed to count transactions", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		zap.L().Error("failed to list transactions", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	txs, err := collect(rows)
	if err != nil {
		zap.L().Error("failed to scan transactions", zap.Int64("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	return txs, total, nil
}

// FindStale returns transactions left in processing since before the given time.
func (r *Repository) FindStale(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + columns + ` FROM transactions
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, before, limit)
	if err != nil {
		zap.L().Error("failed to find stale transactions", zap.Error(err))
		return nil, err
	}
	txs, err := collect(rows)
	if err != nil {
		zap.L().Error("failed to scan stale transactions", zap.Error(err))
		return nil, err
	}
	return txs, nil
}

func (r *Repository) Stats(ctx context.Context, userID int64, from, to time.Time) ([]domain.TypeStat, error) {
	query := `
		SELECT transaction_type, COUNT(*), COALESCE(SUM(amount), 0), COALESCE(ROUND(AVG(amount), 2), 0)
		FROM transactions
		WHERE status = 'completed' AND (sender_id = $1 OR receiver_id = $1)
			AND created_at >= $2 AND created_at < $3
		GROUP BY transaction_type
		ORDER BY transaction_type`
	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		zap.L().Error("failed to query transaction stats", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var stats []domain.TypeStat
	for rows.Next() {
		var s domain.TypeStat
		if err := rows.Scan(&s.Type, &s.Count, &s.TotalAmount, &s.AverageAmount); err != nil {
			zap.L().Error("failed to scan transaction stats", zap.Error(err))
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("failed to iterate transaction stats", zap.Error(err))
		return nil, err
	}
	return stats, nil
}

func (r *Repository) DailyVolume(ctx context.Context, since time.Time) ([]domain.DailyVolume, error) {
	query := `
		SELECT date_trunc('day', created_at) AS day, SUM(amount), COUNT(*)
		FROM transactions
		WHERE status = 'completed' AND created_at >= $1
		GROUP BY day
		ORDER BY day`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		zap.L().Error("failed to query daily volume", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var volumes []domain.DailyVolume
	for rows.Next() {
		var v domain.DailyVolume
		if err := rows.Scan(&v.Day, &v.TotalVolume, &v.TransactionCount); err != nil {
			zap.L().Error("failed to scan daily volume", zap.Error(err))
			return nil, err
		}
		volumes = append(volumes, v)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("failed to iterate daily volume", zap.Error(err))
		return nil, err
	}
	return volumes, nil
}
