package ledgerservice

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletledger/internal/domain"
)

var now = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

func NewMock(t *testing.T) (*Service, *MockRepo) {
	ctrl := gomock.NewController(t)
	repo := NewMockRepo(ctrl)
	service := New(repo, time.UTC)
	service.now = func() time.Time { return now }
	return service, repo
}

func ptr[T any](v T) *T {
	return &v
}

func transferRequest() OpenRequest {
	return OpenRequest{
		Type:       domain.TransactionTypeTransfer,
		SenderID:   ptr(int64(1)),
		ReceiverID: ptr(int64(2)),
		Amount:     decimal.NewFromInt(30),
		Currency:   domain.CurrencyVND,
	}
}

func created(_ context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	out := *tx
	out.ID = 42
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

func TestNewReference(t *testing.T) {
	service, _ := NewMock(t)
	pattern := regexp.MustCompile(`^TRA\d{13}\d{3}$`)

	for i := 0; i < 50; i++ {
		ref := service.newReference(domain.TransactionTypeTransfer)
		assert.Regexp(t, pattern, ref)
		assert.Contains(t, ref, "1792058400000")
	}
	assert.Regexp(t, `^FEE\d{16}$`, service.newReference(domain.TransactionTypeFee))
}

func TestOpen_Validation(t *testing.T) {
	service, _ := NewMock(t)

	tests := []struct {
		name        string
		modify      func(r *OpenRequest)
		expectedErr error
	}{
		{"Unknown type", func(r *OpenRequest) { r.Type = "gift" }, domain.ErrInvalidTransaction},
		{"Zero amount", func(r *OpenRequest) { r.Amount = decimal.Zero }, domain.ErrInvalidTransaction},
		{"Negative amount", func(r *OpenRequest) { r.Amount = decimal.NewFromInt(-5) }, domain.ErrInvalidTransaction},
		{"Amount rounding to zero", func(r *OpenRequest) { r.Amount = decimal.RequireFromString("0.001") }, domain.ErrInvalidTransaction},
		{"Negative fee", func(r *OpenRequest) { r.Fee = decimal.NewFromInt(-1) }, domain.ErrInvalidTransaction},
		{"Unknown currency", func(r *OpenRequest) { r.Currency = "EUR" }, domain.ErrInvalidCurrency},
		{"Unknown gateway", func(r *OpenRequest) { r.Gateway = "paypal" }, domain.ErrInvalidTransaction},
		{"Transfer without receiver", func(r *OpenRequest) { r.ReceiverID = nil }, domain.ErrInvalidTransaction},
		{"Transfer without sender", func(r *OpenRequest) { r.SenderID = nil }, domain.ErrInvalidTransaction},
		{"Same party", func(r *OpenRequest) { r.ReceiverID = ptr(int64(1)) }, domain.ErrSameParty},
		{"Deposit with sender", func(r *OpenRequest) { r.Type = domain.TransactionTypeDeposit }, domain.ErrInvalidTransaction},
		{"Withdraw with receiver", func(r *OpenRequest) { r.Type = domain.TransactionTypeWithdraw }, domain.ErrInvalidTransaction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := transferRequest()
			tt.modify(&req)

			tx, replayed, err := service.Open(context.Background(), req)
			assert.ErrorIs(t, err, tt.expectedErr)
			assert.Nil(t, tx)
			assert.False(t, replayed)
		})
	}
}

func TestOpen(t *testing.T) {
	service, repo := NewMock(t)

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
			assert.Equal(t, domain.StatusPending, tx.Status)
			assert.Equal(t, domain.GatewayInternal, tx.Gateway)
			assert.True(t, tx.Amount.Equal(decimal.RequireFromString("30.13")))
			assert.Nil(t, tx.IdempotencyKey)
			return created(ctx, tx)
		})

	req := transferRequest()
	req.Amount = decimal.RequireFromString("30.125")
	req.IdempotencyKey = ptr("")

	tx, replayed, err := service.Open(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, int64(42), tx.ID)
	assert.Regexp(t, `^TRA\d{16}$`, tx.ReferenceID)
}

func TestOpen_ReferenceCollisionRetries(t *testing.T) {
	service, repo := NewMock(t)
	refs := []string{"TRA1", "TRA2", "TRA3"}
	var i int
	service.reference = func(domain.TransactionType) string {
		ref := refs[i]
		i++
		return ref
	}

	gomock.InOrder(
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, domain.ErrDuplicateReference),
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, domain.ErrDuplicateReference),
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(created),
	)

	tx, _, err := service.Open(context.Background(), transferRequest())
	require.NoError(t, err)
	assert.Equal(t, "TRA3", tx.ReferenceID)
}

func TestOpen_ReferenceAttemptsExhausted(t *testing.T) {
	service, repo := NewMock(t)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, domain.ErrDuplicateReference).Times(referenceAttempts)

	_, _, err := service.Open(context.Background(), transferRequest())
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestOpen_Idempotency(t *testing.T) {
	existing := &domain.Transaction{
		ID: 7, ReferenceID: "TRA1792058400000001", Type: domain.TransactionTypeTransfer,
		SenderID: ptr(int64(1)), ReceiverID: ptr(int64(2)), Amount: decimal.NewFromInt(30),
		Currency: domain.CurrencyVND, Status: domain.StatusCompleted,
	}

	t.Run("Replay of an existing key", func(t *testing.T) {
		service, repo := NewMock(t)
		repo.EXPECT().FindByIdempotencyKey(gomock.Any(), int64(1), "order-1").Return(existing, nil)

		req := transferRequest()
		req.IdempotencyKey = ptr("order-1")
		tx, replayed, err := service.Open(context.Background(), req)

		require.NoError(t, err)
		assert.True(t, replayed)
		assert.Same(t, existing, tx)
	})

	t.Run("Key is scoped to the receiver of sender-less types", func(t *testing.T) {
		service, repo := NewMock(t)
		repo.EXPECT().FindByIdempotencyKey(gomock.Any(), int64(2), "dep-1").Return(nil, nil)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(created)

		_, replayed, err := service.Open(context.Background(), OpenRequest{
			Type:           domain.TransactionTypeDeposit,
			ReceiverID:     ptr(int64(2)),
			Amount:         decimal.NewFromInt(10),
			Currency:       domain.CurrencyVND,
			Gateway:        domain.GatewayBank,
			IdempotencyKey: ptr("dep-1"),
		})
		require.NoError(t, err)
		assert.False(t, replayed)
	})

	t.Run("Key reused for a different request", func(t *testing.T) {
		tests := []struct {
			name   string
			change func(req *OpenRequest)
		}{
			{"amount", func(req *OpenRequest) { req.Amount = decimal.NewFromInt(400) }},
			{"fee", func(req *OpenRequest) { req.Fee = decimal.NewFromInt(1) }},
			{"receiver", func(req *OpenRequest) { req.ReceiverID = ptr(int64(3)) }},
			{"type", func(req *OpenRequest) { req.Type = domain.TransactionTypePayment }},
			{"currency", func(req *OpenRequest) { req.Currency = domain.CurrencyUSD }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				service, repo := NewMock(t)
				repo.EXPECT().FindByIdempotencyKey(gomock.Any(), int64(1), "order-1").Return(existing, nil)

				req := transferRequest()
				req.IdempotencyKey = ptr("order-1")
				tt.change(&req)
				tx, replayed, err := service.Open(context.Background(), req)

				assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
				assert.False(t, replayed)
				assert.Nil(t, tx)
			})
		}
	})

	t.Run("Concurrent duplicate insert resolves to the winner", func(t *testing.T) {
		service, repo := NewMock(t)
		gomock.InOrder(
			repo.EXPECT().FindByIdempotencyKey(gomock.Any(), int64(1), "order-2").Return(nil, nil),
			repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, domain.ErrDuplicateIdempotencyKey),
			repo.EXPECT().FindByIdempotencyKey(gomock.Any(), int64(1), "order-2").Return(existing, nil),
		)

		req := transferRequest()
		req.IdempotencyKey = ptr("order-2")
		tx, replayed, err := service.Open(context.Background(), req)

		require.NoError(t, err)
		assert.True(t, replayed)
		assert.Equal(t, int64(7), tx.ID)
	})

	t.Run("Concurrent winner with a different request", func(t *testing.T) {
		service, repo := NewMock(t)
		other := *existing
		other.Amount = decimal.NewFromInt(99)
		gomock.InOrder(
			repo.EXPECT().FindByIdempotencyKey(gomock.Any(), int64(1), "order-3").Return(nil, nil),
			repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, domain.ErrDuplicateIdempotencyKey),
			repo.EXPECT().FindByIdempotencyKey(gomock.Any(), int64(1), "order-3").Return(&other, nil),
		)

		req := transferRequest()
		req.IdempotencyKey = ptr("order-3")
		_, _, err := service.Open(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
	})
}

func TestTransitions(t *testing.T) {
	service, repo := NewMock(t)

	t.Run("Processing from pending", func(t *testing.T) {
		repo.EXPECT().UpdateStatus(gomock.Any(), int64(1), domain.StatusProcessing,
			[]domain.TransactionStatus{domain.StatusPending}, nil).
			Return(&domain.Transaction{ID: 1, Status: domain.StatusProcessing}, nil)

		tx, err := service.MarkProcessing(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, tx.Status)
	})

	t.Run("Failed carries the reason", func(t *testing.T) {
		repo.EXPECT().UpdateStatus(gomock.Any(), int64(2), domain.StatusFailed,
			[]domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing}, ptr("insufficient balance")).
			Return(&domain.Transaction{ID: 2, Status: domain.StatusFailed}, nil)

		_, err := service.MarkFailed(context.Background(), 2, "insufficient balance")
		require.NoError(t, err)
	})

	t.Run("Completed row cannot be cancelled", func(t *testing.T) {
		repo.EXPECT().UpdateStatus(gomock.Any(), int64(3), domain.StatusCancelled, gomock.Any(), nil).Return(nil, nil)
		repo.EXPECT().GetByID(gomock.Any(), int64(3)).Return(&domain.Transaction{ID: 3, Status: domain.StatusCompleted}, nil)

		_, err := service.MarkCancelled(context.Background(), 3)
		assert.ErrorIs(t, err, domain.ErrInvalidTransactionState)
	})

	t.Run("Missing row", func(t *testing.T) {
		repo.EXPECT().Complete(gomock.Any(), int64(4), gomock.Any()).Return(nil, nil)
		repo.EXPECT().GetByID(gomock.Any(), int64(4)).Return(nil, nil)

		_, err := service.MarkCompleted(context.Background(), 4, domain.Snapshots{})
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})
}

func TestReverse(t *testing.T) {
	completed := &domain.Transaction{
		ID: 5, ReferenceID: "PAY1792058400000123", Type: domain.TransactionTypePayment,
		SenderID: ptr(int64(1)), ReceiverID: ptr(int64(2)),
		Amount: decimal.NewFromInt(30), Fee: decimal.NewFromInt(2),
		Currency: domain.CurrencyVND, Status: domain.StatusCompleted, Gateway: domain.GatewayInternal,
	}

	t.Run("Opens swapped reversal", func(t *testing.T) {
		service, repo := NewMock(t)
		repo.EXPECT().GetByID(gomock.Any(), int64(5)).Return(completed, nil)
		repo.EXPECT().FindByIdempotencyKey(gomock.Any(), int64(2), "REVPAY1792058400000123").Return(nil, nil)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
				assert.Equal(t, domain.TransactionTypePayment, tx.Type)
				assert.Equal(t, int64(2), *tx.SenderID)
				assert.Equal(t, int64(1), *tx.ReceiverID)
				assert.True(t, tx.Amount.Equal(decimal.NewFromInt(30)))
				assert.True(t, tx.Fee.IsZero())
				assert.Equal(t, int64(5), *tx.ReversalOf)
				return created(ctx, tx)
			})

		rev, replayed, err := service.Reverse(context.Background(), 5)
		require.NoError(t, err)
		assert.False(t, replayed)
		assert.Equal(t, int64(42), rev.ID)
	})

	t.Run("Already reversed", func(t *testing.T) {
		service, repo := NewMock(t)
		reversed := *completed
		reversed.IsReversed = true
		repo.EXPECT().GetByID(gomock.Any(), int64(5)).Return(&reversed, nil)

		_, _, err := service.Reverse(context.Background(), 5)
		assert.ErrorIs(t, err, domain.ErrNotReversible)
	})

	t.Run("Not completed", func(t *testing.T) {
		service, repo := NewMock(t)
		pending := *completed
		pending.Status = domain.StatusPending
		repo.EXPECT().GetByID(gomock.Any(), int64(5)).Return(&pending, nil)

		_, _, err := service.Reverse(context.Background(), 5)
		assert.ErrorIs(t, err, domain.ErrNotReversible)
	})
}

func TestLinkReversal(t *testing.T) {
	service, repo := NewMock(t)

	err := service.LinkReversal(context.Background(), &domain.Transaction{ID: 9})
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)

	repo.EXPECT().MarkReversed(gomock.Any(), int64(5), int64(9)).Return(true, nil)
	assert.NoError(t, service.LinkReversal(context.Background(), &domain.Transaction{ID: 9, ReversalOf: ptr(int64(5))}))

	repo.EXPECT().MarkReversed(gomock.Any(), int64(5), int64(10)).Return(false, nil)
	err = service.LinkReversal(context.Background(), &domain.Transaction{ID: 10, ReversalOf: ptr(int64(5))})
	assert.ErrorIs(t, err, domain.ErrNotReversible)
}

func TestHistory(t *testing.T) {
	service, repo := NewMock(t)

	repo.EXPECT().ListByUser(gomock.Any(), int64(1), maxPageSize, 0).Return(nil, int64(0), nil)
	h, err := service.History(context.Background(), 1, Page{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.NotNil(t, h.Items)
	assert.Equal(t, Page{Limit: maxPageSize}, h.Page)

	repo.EXPECT().ListByUser(gomock.Any(), int64(1), defaultPageSize, 20).Return(nil, int64(0), errors.New("db error"))
	_, err = service.History(context.Background(), 1, Page{Offset: 20})
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	service, repo := NewMock(t)

	repo.EXPECT().Stats(gomock.Any(), int64(1), now.AddDate(0, 0, -30), now).
		Return([]domain.TypeStat{{Type: domain.TransactionTypeDeposit, Count: 2}}, nil)
	stats, err := service.Stats(context.Background(), 1, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, stats, 1)

	_, err = service.Stats(context.Background(), 1, now, now.Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
}

func TestDailyVolume(t *testing.T) {
	service, repo := NewMock(t)

	repo.EXPECT().DailyVolume(gomock.Any(), time.Date(2026, 10, 9, 0, 0, 0, 0, time.UTC)).Return(nil, nil)
	volumes, err := service.DailyVolume(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, volumes)
}

func TestStale(t *testing.T) {
	service, repo := NewMock(t)

	repo.EXPECT().FindStale(gomock.Any(), now.Add(-5*time.Minute), 10).
		Return([]domain.Transaction{{ID: 1, Status: domain.StatusProcessing}}, nil)
	txs, err := service.Stale(context.Background(), 5*time.Minute, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
