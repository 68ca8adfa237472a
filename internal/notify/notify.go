// Package notify delivers post-commit transaction events to the users
// involved. Delivery is best effort: the ledger never waits on it for
// correctness.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/walletledger/internal/domain"
)

//go:generate mockgen -source=notify.go -destination=mock_notify.go -package=notify Sink

type Kind string

const (
	KindSent     Kind = "transaction.sent"
	KindReceived Kind = "transaction.received"
	KindDeposit  Kind = "transaction.deposit"
	KindWithdraw Kind = "transaction.withdraw"
	KindFailed   Kind = "transaction.failed"
	KindReversed Kind = "transaction.reversed"
)

type Payload struct {
	TransactionID int64                    `json:"transaction_id"`
	ReferenceID   string                   `json:"reference_id"`
	Type          domain.TransactionType   `json:"type"`
	Amount        decimal.Decimal          `json:"amount"`
	Fee           decimal.Decimal          `json:"fee"`
	Currency      domain.Currency          `json:"currency"`
	Status        domain.TransactionStatus `json:"status"`
	BalanceAfter  decimal.NullDecimal      `json:"balance_after"`
	Reason        string                   `json:"reason,omitempty"`
}

// PayloadFrom describes tx; balanceAfter is the balance of the notified party.
func PayloadFrom(tx *domain.Transaction, balanceAfter decimal.NullDecimal) Payload {
	p := Payload{
		TransactionID: tx.ID,
		ReferenceID:   tx.ReferenceID,
		Type:          tx.Type,
		Amount:        tx.Amount,
		Fee:           tx.Fee,
		Currency:      tx.Currency,
		Status:        tx.Status,
		BalanceAfter:  balanceAfter,
	}
	if tx.FailureReason != nil {
		p.Reason = *tx.FailureReason
	}
	return p
}

type Event struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink is one delivery channel.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Fanout hands every event to all of its sinks. A failing sink does not stop
// delivery to the others.
type Fanout struct {
	sinks []Sink
	now   func() time.Time
}

func New(sinks ...Sink) *Fanout {
	return &Fanout{
		sinks: sinks,
		now:   time.Now,
	}
}

func (f *Fanout) Notify(ctx context.Context, userID int64, kind Kind, payload Payload) error {
	event := Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: f.now().UTC(),
	}

	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Send(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", sink, err))
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event. It is used when no sink is configured.
type Nop struct{}

func (Nop) Send(context.Context, Event) error {
	return nil
}
