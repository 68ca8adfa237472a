package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/GlebRadaev/walletledger/internal/config"
	"github.com/GlebRadaev/walletledger/internal/handlers"
	"github.com/GlebRadaev/walletledger/internal/notify"
	"github.com/GlebRadaev/walletledger/internal/pg"
	"github.com/GlebRadaev/walletledger/internal/reconcile"
	"github.com/GlebRadaev/walletledger/internal/repo"
	"github.com/GlebRadaev/walletledger/internal/service"
	"github.com/GlebRadaev/walletledger/pkg/auth"
	"github.com/GlebRadaev/walletledger/pkg/clients"
	"github.com/GlebRadaev/walletledger/pkg/logger"
	"github.com/GlebRadaev/walletledger/pkg/ratelimit"
)

const shutdownTimeout = 5 * time.Second

type ApplicationI interface {
	Start(ctx context.Context) error
	Wait(ctx context.Context, cancel context.CancelFunc) error
}

type Application struct {
	cfg        *config.Config
	api        *handlers.Handlers
	srv        *service.Services
	repo       *repo.Repositories
	reconciler *reconcile.Service
	limiter    *ratelimit.IPRateLimiter
	closers    []io.Closer

	errCh chan error
	wg    sync.WaitGroup
	ready bool
}

func New() *Application {
	return &Application{
		errCh: make(chan error),
	}
}

func (a *Application) Start(ctx context.Context) error {
	cfg := config.New()

	err := logger.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("can't init logger: %w", err)
	}

	pool, err := getPgxpool(ctx, cfg)
	if err != nil {
		zap.L().Error("build pgx pool failed: ", zap.Error(err))
		return fmt.Errorf("can't build pgx pool: %w", err)
	}
	a.closers = append(a.closers, poolCloser{pool})

	if err := pg.RunMigrations(pool); err != nil {
		zap.L().Error("migrations failed: ", zap.Error(err))
		return a.abort(fmt.Errorf("can't run migrations: %w", err))
	}
	txManager := pg.NewTXManager(pool)

	notifier, err := a.buildNotifier(cfg)
	if err != nil {
		return a.abort(fmt.Errorf("can't build notifier: %w", err))
	}

	conn := pg.New(pool)
	a.cfg = cfg
	a.repo = repo.New(conn)
	a.srv = service.New(cfg, a.repo, txManager, notifier)
	a.limiter = ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	a.api = handlers.New(a.srv, auth.NewJWTService(cfg.Secret), a.limiter.Middleware)
	a.reconciler = reconcile.New(cfg, a.srv.LedgerService)

	if err = a.startHTTPServer(ctx); err != nil {
		return a.abort(fmt.Errorf("can't start http server: %w", err))
	}
	a.startBackground(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()
		a.close()
	}()

	a.ready = true
	zap.L().Info("all systems started successfully")
	return nil
}

// buildNotifier fans notifications out to every configured sink. With none
// configured events are dropped.
func (a *Application) buildNotifier(cfg *config.Config) (*notify.Fanout, error) {
	var sinks []notify.Sink

	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		a.closers = append(a.closers, client)
		sinks = append(sinks, notify.NewRedis(client))
		zap.L().Info("redis notifications enabled", zap.String("address", cfg.RedisAddress))
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := notify.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		sink := notify.NewKafka(producer, cfg.KafkaTopic)
		a.closers = append(a.closers, sink)
		sinks = append(sinks, sink)
		zap.L().Info("kafka notifications enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL, clients.NewHTTPClient()))
		zap.L().Info("webhook notifications enabled", zap.String("url", cfg.WebhookURL))
	}

	if len(sinks) == 0 {
		return notify.New(notify.Nop{}), nil
	}
	return notify.New(sinks...), nil
}

type poolCloser struct {
	pool *pgxpool.Pool
}

func (c poolCloser) Close() error {
	c.pool.Close()
	return nil
}

// close releases everything Start acquired, newest first.
func (a *Application) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	if err := errors.Join(errs...); err != nil {
		zap.L().Warn("closing resources", zap.Error(err))
	}
	a.closers = nil
}

// abort releases what a failed Start acquired and returns err.
func (a *Application) abort(err error) error {
	a.close()
	return err
}

func getPgxpool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	cfgpool, err := pgxpool.ParseConfig(cfg.Database)
	if err != nil {
		return nil, err
	}
	dbpool, err := pgxpool.NewWithConfig(ctx, cfgpool)
	if err != nil {
		return nil, err
	}
	if err = dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, err
	}
	return dbpool, nil
}

func (a *Application) startHTTPServer(ctx context.Context) error {
	router := chi.NewRouter()
	a.api.InitRoutes(router)
	server := http.Server{
		Addr:              a.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()

		sCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sCtx); err != nil {
			zap.L().Warn("http server shutdown", zap.Error(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		zap.L().Info("starting http server on port", zap.String("port", a.cfg.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.errCh <- fmt.Errorf("http server exited with error: %w", err)
		}
	}()

	return nil
}

func (a *Application) startBackground(ctx context.Context) {
	a.reconciler.Start(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.limiter.Run(ctx)
	}()
}

func (a *Application) Wait(ctx context.Context, cancel context.CancelFunc) error {
	var appErr error

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		for err := range a.errCh {
			cancel()
			zap.L().Error(err.Error())
			appErr = err
		}
	}()

	<-ctx.Done()
	a.wg.Wait()
	close(a.errCh)
	wg.Wait()

	return appErr
}
