// Package reconcile fails transactions that were left in processing, for
// example by a process that died between marking a transaction processing
// and committing it. A commit is a single database transaction, so such a
// record never has half-applied wallet changes and failing it is enough.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GlebRadaev/walletledger/internal/config"
	"github.com/GlebRadaev/walletledger/internal/domain"
)

//go:generate mockgen -source=reconcile.go -destination=mock_reconcile.go -package=reconcile Ledger

const (
	batchSize       = 100
	workers         = 4
	defaultInterval = 30 * time.Second
)

type Ledger interface {
	Stale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Transaction, error)
	MarkFailed(ctx context.Context, id int64, reason string) (*domain.Transaction, error)
}

type Service struct {
	ledger     Ledger
	workerPool WorkerPoolI
	interval   time.Duration
	timeout    time.Duration
	limit      int
	inFlight   sync.Map
}

func New(cfg *config.Config, ledger Ledger) *Service {
	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		ledger:     ledger,
		workerPool: NewWorkerPool(workers),
		interval:   interval,
		timeout:    cfg.ProcessingTimeout,
		limit:      batchSize,
	}
}

func (s *Service) Start(ctx context.Context) {
	zap.L().Info("reconciler started", zap.Duration("interval", s.interval), zap.Duration("timeout", s.timeout))
	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.workerPool.Close()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("context canceled, stopping reconciler")
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// reconcile queues every stale transaction for failing and waits until all of
// them are queued.
func (s *Service) reconcile(ctx context.Context) {
	stale, err := s.ledger.Stale(ctx, s.timeout, s.limit)
	if err != nil {
		zap.L().Error("failed to fetch stale transactions", zap.Error(err))
		return
	}

	var g errgroup.Group
	for _, tx := range stale {
		tx := tx

		if _, loaded := s.inFlight.LoadOrStore(tx.ID, struct{}{}); loaded {
			continue
		}

		g.Go(func() error {
			err := s.workerPool.AddTask(ctx, func() error {
				defer s.inFlight.Delete(tx.ID)
				return s.expire(ctx, tx)
			})
			if err != nil {
				s.inFlight.Delete(tx.ID)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		zap.L().Error("failed to queue stale transactions", zap.Error(err))
	}
}

func (s *Service) expire(ctx context.Context, tx domain.Transaction) error {
	reason := fmt.Sprintf("timed out in processing after %s", s.timeout)
	if _, err := s.ledger.MarkFailed(ctx, tx.ID, reason); err != nil {
		return fmt.Errorf("expire %s: %w", tx.ReferenceID, err)
	}
	zap.L().Warn("stale transaction failed", zap.String("reference_id", tx.ReferenceID), zap.Time("updated_at", tx.UpdatedAt))
	return nil
}
