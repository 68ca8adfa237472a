// Package transferservice runs money movements end to end: it opens the
// ledger record, validates the parties, commits every wallet change in one
// database transaction and reports the outcome.
package transferservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/domain"
	"github.com/GlebRadaev/walletledger/internal/notify"
	"github.com/GlebRadaev/walletledger/internal/pg"
	"github.com/GlebRadaev/walletledger/internal/service/ledgerservice"
	"github.com/GlebRadaev/walletledger/internal/service/limitservice"
)

//go:generate mockgen -source=transferservice.go -destination=mock_transferservice.go -package=transferservice WalletStore Ledger Notifier Auditor

type WalletStore interface {
	GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error)
	ResetPeriodsIfDue(wallet domain.Wallet) domain.Wallet
	Lock(ctx context.Context, walletIDs ...int64) ([]domain.Wallet, error)
	ApplyDelta(ctx context.Context, walletID int64, delta, spendDelta decimal.Decimal) (*domain.Wallet, error)
}

type Ledger interface {
	Open(ctx context.Context, req ledgerservice.OpenRequest) (*domain.Transaction, bool, error)
	MarkProcessing(ctx context.Context, id int64) (*domain.Transaction, error)
	MarkCompleted(ctx context.Context, id int64, snapshots domain.Snapshots) (*domain.Transaction, error)
	MarkFailed(ctx context.Context, id int64, reason string) (*domain.Transaction, error)
	MarkCancelled(ctx context.Context, id int64) (*domain.Transaction, error)
	Reverse(ctx context.Context, id int64) (*domain.Transaction, bool, error)
	LinkReversal(ctx context.Context, reversal *domain.Transaction) error
	Get(ctx context.Context, id int64) (*domain.Transaction, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, kind notify.Kind, payload notify.Payload) error
}

type Auditor interface {
	Record(ctx context.Context, actorID int64, action, objectType string, objectID int64, payload map[string]any) error
}

// Intent is a requested money movement before it has a ledger record.
type Intent struct {
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
	// ActorID is who asked for the movement, for the audit trail.
	ActorID int64
}

// Options are the optional parts of an Intent shared by the typed helpers.
type Options struct {
	Fee                  decimal.Decimal
	Currency             domain.Currency
	Description          *string
	Gateway              domain.Gateway
	GatewayTransactionID *string
	IdempotencyKey       *string
	ActorID              int64
}

type Service struct {
	wallets         WalletStore
	ledger          Ledger
	txManager       pg.TXManager
	notifier        Notifier
	auditor         Auditor
	defaultCurrency domain.Currency
	commitRetries   int
}

func New(
	wallets WalletStore, ledger Ledger, txManager pg.TXManager, notifier Notifier, auditor Auditor,
	defaultCurrency domain.Currency, commitRetries int,
) *Service {
	if commitRetries < 1 {
		commitRetries = 1
	}
	if notifier == nil {
		notifier = notify.New()
	}
	return &Service{
		wallets:         wallets,
		ledger:          ledger,
		txManager:       txManager,
		notifier:        notifier,
		auditor:         auditor,
		defaultCurrency: defaultCurrency,
		commitRetries:   commitRetries,
	}
}

func (o Options) intent(t domain.TransactionType, sender, receiver *int64, amount decimal.Decimal, actor int64) Intent {
	if o.ActorID != 0 {
		actor = o.ActorID
	}
	return Intent{
		Type:                 t,
		SenderID:             sender,
		ReceiverID:           receiver,
		Amount:               amount,
		Fee:                  o.Fee,
		Currency:             o.Currency,
		Description:          o.Description,
		Gateway:              o.Gateway,
		GatewayTransactionID: o.GatewayTransactionID,
		IdempotencyKey:       o.IdempotencyKey,
		ActorID:              actor,
	}
}

func (s *Service) Transfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal, opts Options) (*domain.Transaction, error) {
	return s.Execute(ctx, opts.intent(domain.TransactionTypeTransfer, &senderID, &receiverID, amount, senderID))
}

func (s *Service) Pay(ctx context.Context, payerID, merchantID int64, amount decimal.Decimal, opts Options) (*domain.Transaction, error) {
	return s.Execute(ctx, opts.intent(domain.TransactionTypePayment, &payerID, &merchantID, amount, payerID))
}

func (s *Service) Deposit(ctx context.Context, userID int64, amount decimal.Decimal, opts Options) (*domain.Transaction, error) {
	return s.Execute(ctx, opts.intent(domain.TransactionTypeDeposit, nil, &userID, amount, userID))
}

func (s *Service) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal, opts Options) (*domain.Transaction, error) {
	return s.Execute(ctx, opts.intent(domain.TransactionTypeWithdraw, &userID, nil, amount, userID))
}

func (s *Service) Refund(ctx context.Context, userID int64, amount decimal.Decimal, opts Options) (*domain.Transaction, error) {
	return s.Execute(ctx, opts.intent(domain.TransactionTypeRefund, nil, &userID, amount, userID))
}

func (s *Service) ChargeFee(ctx context.Context, userID int64, amount decimal.Decimal, opts Options) (*domain.Transaction, error) {
	return s.Execute(ctx, opts.intent(domain.TransactionTypeFee, &userID, nil, amount, userID))
}

func (s *Service) Bonus(ctx context.Context, userID int64, amount decimal.Decimal, opts Options) (*domain.Transaction, error) {
	return s.Execute(ctx, opts.intent(domain.TransactionTypeBonus, nil, &userID, amount, userID))
}

// Execute opens the ledger record for in and drives it to completed or
// failed. A replayed idempotency key returns the earlier record untouched.
func (s *Service) Execute(ctx context.Context, in Intent) (*domain.Transaction, error) {
	currency := in.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	tx, replayed, err := s.ledger.Open(ctx, ledgerservice.OpenRequest{
		Type:                 in.Type,
		SenderID:             in.SenderID,
		ReceiverID:           in.ReceiverID,
		Amount:               in.Amount,
		Fee:                  in.Fee,
		Currency:             currency,
		Description:          in.Description,
		Gateway:              in.Gateway,
		GatewayTransactionID: in.GatewayTransactionID,
		IdempotencyKey:       in.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		return tx, nil
	}
	return s.run(ctx, tx, in.ActorID, decimal.Zero)
}

// Reverse compensates a completed transaction with a new one moving the
// same amount back. The fee the original sender paid is credited back in the
// same commit, so both wallets return to their balances before the original.
// Reversals are exempt from spend limits.
func (s *Service) Reverse(ctx context.Context, actorID, txID int64) (*domain.Transaction, error) {
	reversal, replayed, err := s.ledger.Reverse(ctx, txID)
	if err != nil {
		return nil, err
	}
	if replayed {
		return reversal, nil
	}

	feeRefund := decimal.Zero
	if reversal.ReceiverID != nil {
		original, err := s.ledger.Get(ctx, txID)
		if err != nil {
			return nil, s.fail(ctx, reversal, actorID, err)
		}
		feeRefund = original.Fee
	}
	return s.run(ctx, reversal, actorID, feeRefund)
}

// Cancel stops a transaction that has not been committed. Committed
// transactions can only be reversed.
func (s *Service) Cancel(ctx context.Context, actorID, txID int64) (*domain.Transaction, error) {
	tx, err := s.ledger.MarkCancelled(ctx, txID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, "transaction.cancel", tx)
	return tx, nil
}

// run drives an opened transaction to its end. feeRefund is credited to the
// receiver on top of the amount.
func (s *Service) run(ctx context.Context, tx *domain.Transaction, actorID int64, feeRefund decimal.Decimal) (*domain.Transaction, error) {
	sender, receiver, err := s.admit(ctx, tx)
	if err != nil {
		return nil, s.fail(ctx, tx, actorID, err)
	}
	if err := s.validate(tx, sender); err != nil {
		return nil, s.fail(ctx, tx, actorID, err)
	}

	if _, err := s.ledger.MarkProcessing(ctx, tx.ID); err != nil {
		return nil, s.fail(ctx, tx, actorID, err)
	}

	completed, err := s.commit(ctx, tx, sender, receiver, feeRefund)
	if err != nil {
		return nil, s.fail(ctx, tx, actorID, err)
	}

	s.report(ctx, completed, actorID)
	return completed, nil
}

// admit loads the wallet of every party present on tx.
func (s *Service) admit(ctx context.Context, tx *domain.Transaction) (sender, receiver *domain.Wallet, err error) {
	load := func(userID *int64) (*domain.Wallet, error) {
		if userID == nil {
			return nil, nil
		}
		wallet, err := s.wallets.GetWallet(ctx, *userID)
		if err != nil {
			return nil, err
		}
		if !wallet.IsActive {
			return nil, fmt.Errorf("%w: user %d", domain.ErrInactiveWallet, *userID)
		}
		if wallet.Currency != tx.Currency {
			return nil, fmt.Errorf("%w: wallet of user %d holds %s, transaction is in %s",
				domain.ErrCurrencyMismatch, *userID, wallet.Currency, tx.Currency)
		}
		return wallet, nil
	}

	if sender, err = load(tx.SenderID); err != nil {
		return nil, nil, err
	}
	if receiver, err = load(tx.ReceiverID); err != nil {
		return nil, nil, err
	}
	return sender, receiver, nil
}

func spendsLimit(tx *domain.Transaction) bool {
	return tx.Type.Limited() && tx.ReversalOf == nil
}

// validate checks the sender's debit against a reset snapshot of its wallet.
// The same checks run again on the locked row at commit time.
func (s *Service) validate(tx *domain.Transaction, sender *domain.Wallet) error {
	if sender == nil {
		return nil
	}
	wallet := s.wallets.ResetPeriodsIfDue(*sender)
	if spendsLimit(tx) {
		return limitservice.Evaluate(wallet, tx.Total()).Err()
	}
	return limitservice.EvaluateBalance(wallet, tx.Total()).Err()
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrConcurrencyConflict) || pg.IsRetryable(err)
}

func (s *Service) commit(
	ctx context.Context, tx *domain.Transaction, sender, receiver *domain.Wallet, feeRefund decimal.Decimal,
) (*domain.Transaction, error) {
	for attempt := 1; ; attempt++ {
		completed, err := s.commitOnce(ctx, tx, sender, receiver, feeRefund)
		if err == nil {
			return completed, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt >= s.commitRetries {
			return nil, fmt.Errorf("%w: gave up after %d attempts: %v", domain.ErrConcurrencyConflict, attempt, err)
		}
		zap.L().Info("retrying commit",
			zap.String("reference_id", tx.ReferenceID), zap.Int("attempt", attempt), zap.Error(err))
	}
}

// commitOnce applies every wallet change of tx and completes it in a single
// database transaction. Any error rolls all of it back.
func (s *Service) commitOnce(
	ctx context.Context, tx *domain.Transaction, sender, receiver *domain.Wallet, feeRefund decimal.Decimal,
) (*domain.Transaction, error) {
	var completed *domain.Transaction
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		var ids []int64
		for _, w := range []*domain.Wallet{sender, receiver} {
			if w != nil {
				ids = append(ids, w.ID)
			}
		}
		if _, err := s.wallets.Lock(ctx, ids...); err != nil {
			return err
		}

		var snapshots domain.Snapshots
		if sender != nil {
			total := tx.Total()
			spend := decimal.Zero
			if spendsLimit(tx) {
				spend = total
			}
			after, err := s.wallets.ApplyDelta(ctx, sender.ID, total.Neg(), spend)
			if err != nil {
				return err
			}
			snapshots.SenderBefore = domain.Money(after.Balance.Add(total))
			snapshots.SenderAfter = domain.Money(after.Balance)
		}
		if receiver != nil {
			credit := tx.Amount.Add(feeRefund)
			after, err := s.wallets.ApplyDelta(ctx, receiver.ID, credit, decimal.Zero)
			if err != nil {
				return err
			}
			snapshots.ReceiverBefore = domain.Money(after.Balance.Sub(credit))
			snapshots.ReceiverAfter = domain.Money(after.Balance)
		}

		if tx.ReversalOf != nil {
			if err := s.ledger.LinkReversal(ctx, tx); err != nil {
				return err
			}
		}

		var err error
		completed, err = s.ledger.MarkCompleted(ctx, tx.ID, snapshots)
		return err
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// fail records cause on tx and returns it. The ledger write survives a
// cancelled request context so the record does not stay in flight.
func (s *Service) fail(ctx context.Context, tx *domain.Transaction, actorID int64, cause error) error {
	ctx = context.WithoutCancel(ctx)
	failed, err := s.ledger.MarkFailed(ctx, tx.ID, cause.Error())
	if err != nil {
		zap.L().Error("failed to mark transaction failed",
			zap.String("reference_id", tx.ReferenceID), zap.NamedError("cause", cause), zap.Error(err))
		return cause
	}
	zap.L().Info("transaction rejected", zap.String("reference_id", tx.ReferenceID), zap.Error(cause))
	s.audit(ctx, actorID, "transaction.fail", failed)

	party := tx.SenderID
	if party == nil {
		party = tx.ReceiverID
	}
	if err := s.notifier.Notify(ctx, *party, notify.KindFailed, notify.PayloadFrom(failed, decimal.NullDecimal{})); err != nil {
		zap.L().Warn("failed to notify about rejection", zap.String("reference_id", tx.ReferenceID), zap.Error(err))
	}
	return cause
}

// report writes the audit entry and notifies each party. Neither can undo
// the commit, so failures are only logged.
func (s *Service) report(ctx context.Context, tx *domain.Transaction, actorID int64) {
	action := "transaction." + string(tx.Type)
	if tx.ReversalOf != nil {
		action = "transaction.reverse"
	}
	s.audit(ctx, actorID, action, tx)

	if tx.SenderID != nil {
		kind := notify.KindSent
		switch {
		case tx.ReversalOf != nil:
			kind = notify.KindReversed
		case tx.Type == domain.TransactionTypeWithdraw || tx.Type == domain.TransactionTypeFee:
			kind = notify.KindWithdraw
		}
		s.notify(ctx, *tx.SenderID, kind, notify.PayloadFrom(tx, tx.SenderBalanceAfter))
	}
	if tx.ReceiverID != nil {
		kind := notify.KindReceived
		switch {
		case tx.ReversalOf != nil:
			kind = notify.KindReversed
		case tx.Type == domain.TransactionTypeDeposit:
			kind = notify.KindDeposit
		}
		s.notify(ctx, *tx.ReceiverID, kind, notify.PayloadFrom(tx, tx.ReceiverBalanceAfter))
	}
}

func (s *Service) notify(ctx context.Context, userID int64, kind notify.Kind, payload notify.Payload) {
	if err := s.notifier.Notify(ctx, userID, kind, payload); err != nil {
		zap.L().Warn("failed to deliver notification",
			zap.Int64("user_id", userID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, actorID int64, action string, tx *domain.Transaction) {
	payload := map[string]any{
		"reference_id": tx.ReferenceID,
		"type":         tx.Type,
		"amount":       tx.Amount.StringFixed(domain.MoneyPlaces),
		"fee":          tx.Fee.StringFixed(domain.MoneyPlaces),
		"status":       tx.Status,
	}
	if tx.SenderID != nil {
		payload["sender_id"] = *tx.SenderID
	}
	if tx.ReceiverID != nil {
		payload["receiver_id"] = *tx.ReceiverID
	}
	if tx.ReversalOf != nil {
		payload["reversal_of"] = *tx.ReversalOf
	}
	if tx.FailureReason != nil {
		payload["failure_reason"] = *tx.FailureReason
	}
	for name, snapshot := range map[string]decimal.NullDecimal{
		"sender_balance_before":   tx.SenderBalanceBefore,
		"sender_balance_after":    tx.SenderBalanceAfter,
		"receiver_balance_before": tx.ReceiverBalanceBefore,
		"receiver_balance_after":  tx.ReceiverBalanceAfter,
	} {
		if snapshot.Valid {
			payload[name] = snapshot.Decimal.StringFixed(domain.MoneyPlaces)
		}
	}
	if err := s.auditor.Record(ctx, actorID, action, "transaction", tx.ID, payload); err != nil {
		zap.L().Warn("failed to audit transaction", zap.String("reference_id", tx.ReferenceID), zap.Error(err))
	}
}
