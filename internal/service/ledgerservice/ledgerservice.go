// Package ledgerservice keeps the durable record of every money movement and
// guards its status transitions.
package ledgerservice

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/domain"
)

//go:generate mockgen -source=ledgerservice.go -destination=mock_ledgerservice.go -package=ledgerservice Repo

type Repo interface {
	Create(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, scope int64, key string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status domain.TransactionStatus, from []domain.TransactionStatus, failureReason *string) (*domain.Transaction, error)
	Complete(ctx context.Context, id int64, snapshots domain.Snapshots) (*domain.Transaction, error)
	MarkReversed(ctx context.Context, id, reversedBy int64) (bool, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Transaction, int64, error)
	FindStale(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error)
	Stats(ctx context.Context, userID int64, from, to time.Time) ([]domain.TypeStat, error)
	DailyVolume(ctx context.Context, since time.Time) ([]domain.DailyVolume, error)
}

const (
	referenceAttempts = 5
	defaultPageSize   = 20
	maxPageSize       = 100
	defaultStatsDays  = 30
	reversalKeyPrefix = "REV"
)

type OpenRequest struct {
	Type                 domain.TransactionType
	SenderID             *int64
	ReceiverID           *int64
	Amount               decimal.Decimal
	Fee                  decimal.Decimal
	Currency             domain.Currency
	Description          *string
	Gateway              domain.Gateway
	GatewayTransactionID *string
	IdempotencyKey       *string
	ReversalOf           *int64
}

type Page struct {
	Limit  int
	Offset int
}

type History struct {
	Items []domain.Transaction
	Total int64
	Page  Page
}

type Service struct {
	repo      Repo
	loc       *time.Location
	now       func() time.Time
	reference func(domain.TransactionType) string
}

func New(repo Repo, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	s := &Service{
		repo: repo,
		loc:  loc,
		now:  time.Now,
	}
	s.reference = s.newReference
	return s
}

// newReference builds {first three letters of the type}{unix millis}{three digits}.
func (s *Service) newReference(t domain.TransactionType) string {
	prefix := strings.ToUpper(string(t))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("%s%d%03d", prefix, s.now().UnixMilli(), rand.IntN(1000))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidTransaction, fmt.Sprintf(format, args...))
}

func validate(req *OpenRequest) error {
	if !req.Type.Valid() {
		return invalid("unknown type %q", req.Type)
	}
	if !req.Amount.IsPositive() {
		return invalid("amount must be positive")
	}
	if req.Fee.IsNegative() {
		return invalid("fee must not be negative")
	}
	if !req.Currency.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, req.Currency)
	}
	if req.Gateway == "" {
		req.Gateway = domain.GatewayInternal
	}
	if !req.Gateway.Valid() {
		return invalid("unknown gateway %q", req.Gateway)
	}
	if req.SenderID == nil && req.ReceiverID == nil {
		return invalid("no parties")
	}
	if req.SenderID != nil && req.ReceiverID != nil && *req.SenderID == *req.ReceiverID {
		return domain.ErrSameParty
	}
	// A reversal swaps the sides of its original, so party rules of the type do not apply.
	if req.ReversalOf != nil {
		return nil
	}
	if req.Type.RequiresSender() && req.SenderID == nil {
		return invalid("%s requires a sender", req.Type)
	}
	if req.Type.RequiresReceiver() && req.ReceiverID == nil {
		return invalid("%s requires a receiver", req.Type)
	}
	if !req.Type.RequiresSender() && req.SenderID != nil && req.Type != domain.TransactionTypeRefund {
		return invalid("%s takes no sender wallet", req.Type)
	}
	if !req.Type.RequiresReceiver() && req.ReceiverID != nil {
		return invalid("%s takes no receiver wallet", req.Type)
	}
	return nil
}

// Open records a pending transaction. A non-empty idempotency key is scoped
// to the requesting party: when it matches a non-failed transaction of that
// party, the earlier record is returned with replayed set and nothing is
// written. A match that differs from req is rejected with
// ErrIdempotencyKeyReused.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*domain.Transaction, bool, error) {
	if err := validate(&req); err != nil {
		return nil, false, err
	}

	key := req.IdempotencyKey
	if key != nil && *key == "" {
		key = nil
	}
	scope := idempotencyScope(req.SenderID, req.ReceiverID)
	if key != nil {
		existing, err := s.replay(ctx, scope, *key, req)
		if err != nil || existing != nil {
			return existing, existing != nil, err
		}
	}

	tx := &domain.Transaction{
		IdempotencyKey:       key,
		Type:                 req.Type,
		SenderID:             req.SenderID,
		ReceiverID:           req.ReceiverID,
		Amount:               domain.RoundMoney(req.Amount),
		Fee:                  domain.RoundMoney(req.Fee),
		Currency:             req.Currency,
		Status:               domain.StatusPending,
		Description:          req.Description,
		Gateway:              req.Gateway,
		GatewayTransactionID: req.GatewayTransactionID,
		ReversalOf:           req.ReversalOf,
	}
	if !tx.Amount.IsPositive() {
		return nil, false, invalid("amount rounds to zero")
	}

	for attempt := 1; attempt <= referenceAttempts; attempt++ {
		tx.ReferenceID = s.reference(req.Type)
		created, err := s.repo.Create(ctx, tx)
		switch {
		case err == nil:
			return created, false, nil
		case errors.Is(err, domain.ErrDuplicateReference):
			zap.L().Warn("reference id collision", zap.String("reference_id", tx.ReferenceID), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, domain.ErrDuplicateIdempotencyKey):
			// A concurrent request with the same key won the insert.
			existing, findErr := s.replay(ctx, scope, *key, req)
			if findErr != nil {
				return nil, false, findErr
			}
			if existing == nil {
				return nil, false, domain.ErrConcurrencyConflict
			}
			return existing, true, nil
		default:
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("%w: no unique reference id after %d attempts", domain.ErrConcurrencyConflict, referenceAttempts)
}

// idempotencyScope is the party whose requests share one key space: the
// sender, or the receiver of sender-less types.
func idempotencyScope(sender, receiver *int64) int64 {
	if sender != nil {
		return *sender
	}
	return *receiver
}

func sameParty(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameRequest reports whether tx is what req would have created.
func sameRequest(tx *domain.Transaction, req OpenRequest) bool {
	return tx.Type == req.Type &&
		sameParty(tx.SenderID, req.SenderID) &&
		sameParty(tx.ReceiverID, req.ReceiverID) &&
		tx.Amount.Equal(domain.RoundMoney(req.Amount)) &&
		tx.Fee.Equal(domain.RoundMoney(req.Fee)) &&
		tx.Currency == req.Currency
}

func (s *Service) replay(ctx context.Context, scope int64, key string, req OpenRequest) (*domain.Transaction, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, scope, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if !sameRequest(existing, req) {
		zap.L().Warn("idempotency key reused", zap.Int64("scope", scope), zap.String("key", key),
			zap.String("reference_id", existing.ReferenceID))
		return nil, fmt.Errorf("%w: %q already names %s", domain.ErrIdempotencyKeyReused, key, existing.ReferenceID)
	}
	zap.L().Info("idempotent replay", zap.String("key", key), zap.String("reference_id", existing.ReferenceID))
	return existing, nil
}

func (s *Service) transition(
	ctx context.Context, id int64, to domain.TransactionStatus, reason *string, from ...domain.TransactionStatus,
) (*domain.Transaction, error) {
	tx, err := s.repo.UpdateStatus(ctx, id, to, from, reason)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, s.rejectTransition(ctx, id, to)
	}
	return tx, nil
}

// rejectTransition explains why a guarded update matched no row.
func (s *Service) rejectTransition(ctx context.Context, id int64, to domain.TransactionStatus) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrTransactionNotFound
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransactionState, current.Status, to)
}

func (s *Service) MarkProcessing(ctx context.Context, id int64) (*domain.Transaction, error) {
	return s.transition(ctx, id, domain.StatusProcessing, nil, domain.StatusPending)
}

// MarkCompleted stores the balance snapshots taken in the commit unit.
func (s *Service) MarkCompleted(ctx context.Context, id int64, snapshots domain.Snapshots) (*domain.Transaction, error) {
	tx, err := s.repo.Complete(ctx, id, snapshots)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, s.rejectTransition(ctx, id, domain.StatusCompleted)
	}
	return tx, nil
}

func (s *Service) MarkFailed(ctx context.Context, id int64, reason string) (*domain.Transaction, error) {
	return s.transition(ctx, id, domain.StatusFailed, &reason, domain.StatusPending, domain.StatusProcessing)
}

func (s *Service) MarkCancelled(ctx context.Context, id int64) (*domain.Transaction, error) {
	return s.transition(ctx, id, domain.StatusCancelled, nil, domain.StatusPending, domain.StatusProcessing)
}

// Reverse opens the compensating transaction of a completed one: same type
// and amount, parties swapped, no fee. Reversing twice replays the first
// reversal while it is still in flight.
func (s *Service) Reverse(ctx context.Context, id int64) (*domain.Transaction, bool, error) {
	original, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if original.Status != domain.StatusCompleted || original.IsReversed {
		return nil, false, fmt.Errorf("%w: %s is %s, reversed=%t",
			domain.ErrNotReversible, original.ReferenceID, original.Status, original.IsReversed)
	}

	description := "Reversal of " + original.ReferenceID
	key := reversalKeyPrefix + original.ReferenceID
	return s.Open(ctx, OpenRequest{
		Type:           original.Type,
		SenderID:       original.ReceiverID,
		ReceiverID:     original.SenderID,
		Amount:         original.Amount,
		Fee:            decimal.Zero,
		Currency:       original.Currency,
		Description:    &description,
		Gateway:        original.Gateway,
		IdempotencyKey: &key,
		ReversalOf:     &original.ID,
	})
}

// LinkReversal marks the original of reversal as reversed. It belongs in the
// same commit unit as the reversal's wallet changes.
func (s *Service) LinkReversal(ctx context.Context, reversal *domain.Transaction) error {
	if reversal.ReversalOf == nil {
		return invalid("transaction %d is not a reversal", reversal.ID)
	}
	ok, err := s.repo.MarkReversed(ctx, *reversal.ReversalOf, reversal.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: original %d already reversed or not completed", domain.ErrNotReversible, *reversal.ReversalOf)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Transaction, error) {
	tx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *Service) GetByReference(ctx context.Context, referenceID string) (*domain.Transaction, error) {
	tx, err := s.repo.GetByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return tx, nil
}

// History lists the user's transactions newest first.
func (s *Service) History(ctx context.Context, userID int64, page Page) (*History, error) {
	if page.Limit <= 0 {
		page.Limit = defaultPageSize
	}
	if page.Limit > maxPageSize {
		page.Limit = maxPageSize
	}
	if page.Offset < 0 {
		page.Offset = 0
	}

	items, total, err := s.repo.ListByUser(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Transaction{}
	}
	return &History{Items: items, Total: total, Page: page}, nil
}

// Stats aggregates completed transactions per type over [from, to). Zero
// bounds default to the last thirty days.
func (s *Service) Stats(ctx context.Context, userID int64, from, to time.Time) ([]domain.TypeStat, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultStatsDays)
	}
	if !from.Before(to) {
		return nil, invalid("empty period")
	}
	stats, err := s.repo.Stats(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []domain.TypeStat{}
	}
	return stats, nil
}

// DailyVolume returns the completed volume per day for the last days days,
// today included.
func (s *Service) DailyVolume(ctx context.Context, days int) ([]domain.DailyVolume, error) {
	if days <= 0 {
		days = defaultStatsDays
	}
	y, m, d := s.now().In(s.loc).Date()
	since := time.Date(y, m, d-(days-1), 0, 0, 0, 0, s.loc)

	volumes, err := s.repo.DailyVolume(ctx, since)
	if err != nil {
		return nil, err
	}
	if volumes == nil {
		volumes = []domain.DailyVolume{}
	}
	return volumes, nil
}

// Stale lists transactions stuck in processing for longer than olderThan.
func (s *Service) Stale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Transaction, error) {
	return s.repo.FindStale(ctx, s.now().Add(-olderThan), limit)
}
