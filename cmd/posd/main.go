package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tokoku/pos-core/internal/app"
	"github.com/tokoku/pos-core/internal/catalog"
	"github.com/tokoku/pos-core/internal/inventory"
	"github.com/tokoku/pos-core/internal/observability"
	"github.com/tokoku/pos-core/internal/platform/cache"
	"github.com/tokoku/pos-core/internal/platform/db"
	"github.com/tokoku/pos-core/internal/pos"
	"github.com/tokoku/pos-core/internal/shared"
	"github.com/tokoku/pos-core/internal/shift"
	"github.com/tokoku/pos-core/internal/store/memory"
	"github.com/tokoku/pos-core/jobs"
)

// repositories holds one backend per module for the selected store driver.
type repositories struct {
	catalog   catalog.RepositoryPort
	inventory inventory.RepositoryPort
	shifts    shift.RepositoryPort
	pos       pos.RepositoryPort
	audit     shared.AuditRecorder
	ping      func(ctx context.Context) error
	close     func()
}

func openPostgres(ctx context.Context, cfg *app.Config, metrics *observability.Metrics) (*repositories, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	opts := db.TxOptions{
		LockTimeout: cfg.TxLockTimeout,
		MaxAttempts: cfg.TxMaxAttempts,
		OnRetry:     metrics.ObserveTxRetry,
	}
	return &repositories{
		catalog:   catalog.NewRepository(pool),
		inventory: inventory.NewRepository(pool, opts),
		shifts:    shift.NewRepository(pool, opts),
		pos:       pos.NewRepository(pool, opts),
		audit:     shared.NewAuditLogger(pool),
		ping:      pingPool(pool),
		close:     pool.Close,
	}, nil
}

func pingPool(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func openMemory() *repositories {
	store := memory.New()
	return &repositories{
		catalog:   store.Catalog(),
		inventory: store.Inventory(),
		shifts:    store.Shifts(),
		pos:       store.Transactions(),
		audit:     &shared.MemoryAudit{},
		ping:      func(context.Context) error { return nil },
		close:     func() {},
	}
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var repos *repositories
	switch cfg.StoreDriver {
	case app.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		repos = openMemory()
	default:
		repos, err = openPostgres(ctx, cfg, metrics)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
	}
	defer repos.close()

	var redisClient *redis.Client
	redisClient, err = cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, idempotency keys disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var guard *shared.IdempotencyGuard
	if redisClient != nil {
		guard = shared.NewIdempotencyGuard(redisClient, cfg.IdempotencyTTL)
	}

	catalogService := catalog.NewService(repos.catalog, repos.audit, logger)
	inventoryService := inventory.NewService(repos.inventory, metrics, logger)
	shiftService := shift.NewService(repos.shifts, repos.audit, logger)
	posService := pos.NewService(repos.pos, pos.Options{
		Policy:  cfg.Policy(),
		Guard:   guard,
		Audit:   repos.audit,
		Metrics: metrics,
	}, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		ShiftHandler:     shift.NewHandler(logger, shiftService),
		POSHandler:       pos.NewHandler(logger, posService),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
		Metrics:          metrics,
		Ready: func(r *http.Request) error {
			return repos.ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	servers := []*http.Server{server}
	if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.AppAddr {
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logger.Info("starting http server", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown", slog.String("addr", srv.Addr), slog.Any("error", err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
