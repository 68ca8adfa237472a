package transferservice

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/pg"
)

// The in-memory stores below stand in for Postgres in the flow tests. The
// transaction manager runs one commit unit at a time and replays an undo log
// on error, which gives the serializable behaviour row locks give in the
// database.

type undoLog struct {
	undo []func()
}

type undoKey struct{}

func onRollback(ctx context.Context, fn func()) {
	if log, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		log.undo = append(log.undo, fn)
	}
}

type memTXManager struct {
	mu sync.Mutex
}

func (m *memTXManager) Begin(ctx context.Context, fn pg.TransactionalFn) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	log := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, log)); err != nil {
		for i := len(log.undo) - 1; i >= 0; i-- {
			log.undo[i]()
		}
		return err
	}
	return nil
}

type memWallets struct {
	mu     sync.Mutex
	rows   map[int64]domain.Wallet
	nextID int64
}

func newMemWallets() *memWallets {
	return &memWallets{rows: map[int64]domain.Wallet{}}
}

func (s *memWallets) byUser(userID int64) (domain.Wallet, bool) {
	for _, w := range s.rows {
		if w.UserID == userID {
			return w, true
		}
	}
	return domain.Wallet{}, false
}

func (s *memWallets) GetByUserID(_ context.Context, userID int64) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byUser(userID)
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *memWallets) Create(_ context.Context, wallet *domain.Wallet) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUser(wallet.UserID); ok {
		return nil, domain.ErrWalletExists
	}
	s.nextID++
	w := *wallet
	w.ID = s.nextID
	w.Balance = decimal.Zero
	w.DailySpent, w.MonthlySpent = decimal.Zero, decimal.Zero
	w.CreatedAt, w.UpdatedAt = time.Now(), time.Now()
	s.rows[w.ID] = w
	return &w, nil
}

func (s *memWallets) LockByIDs(_ context.Context, ids []int64) ([]domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wallet
	for _, id := range ids {
		if w, ok := s.rows[id]; ok {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memWallets) Update(ctx context.Context, wallet *domain.Wallet) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.rows[wallet.ID]
	if !ok || prev.Version != wallet.Version {
		return nil, domain.ErrConcurrencyConflict
	}
	if wallet.Balance.IsNegative() {
		panic("balance check constraint violated")
	}
	w := *wallet
	w.Version++
	w.UpdatedAt = time.Now()
	s.rows[w.ID] = w
	onRollback(ctx, func() { s.restore(prev) })
	return &w, nil
}

func (s *memWallets) restore(w domain.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[w.ID] = w
}

func (s *memWallets) SetActive(_ context.Context, userID int64, active bool) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byUser(userID)
	if !ok {
		return nil, nil
	}
	w.IsActive = active
	w.Version++
	s.rows[w.ID] = w
	return &w, nil
}

func (s *memWallets) UpdateLimits(_ context.Context, userID int64, daily, monthly decimal.Decimal) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.byUser(userID)
	if !ok {
		return nil, nil
	}
	w.DailyLimit, w.MonthlyLimit = daily, monthly
	w.Version++
	s.rows[w.ID] = w
	return &w, nil
}

type memLedger struct {
	mu     sync.Mutex
	rows   map[int64]domain.Transaction
	nextID int64
}

func newMemLedger() *memLedger {
	return &memLedger{rows: map[int64]domain.Transaction{}}
}

func (s *memLedger) set(ctx context.Context, tx domain.Transaction) *domain.Transaction {
	prev := s.rows[tx.ID]
	tx.UpdatedAt = time.Now()
	s.rows[tx.ID] = tx
	onRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.rows[prev.ID] = prev
	})
	return &tx
}

func (s *memLedger) Create(_ context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ReferenceID == tx.ReferenceID {
			return nil, domain.ErrDuplicateReference
		}
		if tx.IdempotencyKey != nil && row.IdempotencyKey != nil && scopeOf(row) == scopeOf(*tx) &&
			*row.IdempotencyKey == *tx.IdempotencyKey && row.Status != domain.StatusFailed {
			return nil, domain.ErrDuplicateIdempotencyKey
		}
	}
	s.nextID++
	row := *tx
	row.ID = s.nextID
	row.CreatedAt, row.UpdatedAt = time.Now(), time.Now()
	s.rows[row.ID] = row
	return &row, nil
}

func (s *memLedger) find(match func(domain.Transaction) bool) *domain.Transaction {
	var found *domain.Transaction
	for _, row := range s.rows {
		if match(row) && (found == nil || row.ID < found.ID) {
			row := row
			found = &row
		}
	}
	return found
}

func (s *memLedger) GetByID(_ context.Context, id int64) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		return &row, nil
	}
	return nil, nil
}

func (s *memLedger) GetByReference(_ context.Context, referenceID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(t domain.Transaction) bool { return t.ReferenceID == referenceID }), nil
}

// scopeOf mirrors COALESCE(sender_id, receiver_id) of the idempotency index.
func scopeOf(t domain.Transaction) int64 {
	if t.SenderID != nil {
		return *t.SenderID
	}
	return *t.ReceiverID
}

func (s *memLedger) FindByIdempotencyKey(_ context.Context, scope int64, key string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(t domain.Transaction) bool {
		if t.Status == domain.StatusFailed {
			return false
		}
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key && scopeOf(t) == scope {
			return true
		}
		return t.ReferenceID == key && t.Involves(scope)
	}), nil
}

func (s *memLedger) UpdateStatus(
	ctx context.Context, id int64, status domain.TransactionStatus, from []domain.TransactionStatus, reason *string,
) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	for _, f := range from {
		if row.Status == f {
			row.Status = status
			if reason != nil {
				row.FailureReason = reason
			}
			return s.set(ctx, row), nil
		}
	}
	return nil, nil
}

func (s *memLedger) Complete(ctx context.Context, id int64, snaps domain.Snapshots) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != domain.StatusProcessing {
		return nil, nil
	}
	now := time.Now()
	row.Status = domain.StatusCompleted
	row.ProcessedAt = &now
	row.SenderBalanceBefore, row.SenderBalanceAfter = snaps.SenderBefore, snaps.SenderAfter
	row.ReceiverBalanceBefore, row.ReceiverBalanceAfter = snaps.ReceiverBefore, snaps.ReceiverAfter
	return s.set(ctx, row), nil
}

func (s *memLedger) MarkReversed(ctx context.Context, id, reversedBy int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != domain.StatusCompleted || row.IsReversed {
		return false, nil
	}
	row.IsReversed = true
	row.ReversedBy = &reversedBy
	s.set(ctx, row)
	return true, nil
}

func (s *memLedger) ListByUser(_ context.Context, userID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Transaction
	for _, row := range s.rows {
		if row.Involves(userID) {
			all = append(all, row)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *memLedger) FindStale(_ context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, row := range s.rows {
		if row.Status == domain.StatusProcessing && row.UpdatedAt.Before(before) && len(out) < limit {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *memLedger) Stats(context.Context, int64, time.Time, time.Time) ([]domain.TypeStat, error) {
	return nil, nil
}

func (s *memLedger) DailyVolume(context.Context, time.Time) ([]domain.DailyVolume, error) {
	return nil, nil
}

func (s *memLedger) byStatus(status domain.TransactionStatus) []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, row := range s.rows {
		if row.Status == status {
			out = append(out, row)
		}
	}
	return out
}

type memAudit struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (s *memAudit) Insert(_ context.Context, record *domain.AuditRecord) (*domain.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *record
	r.ID = int64(len(s.records) + 1)
	s.records = append(s.records, r)
	return &r, nil
}
