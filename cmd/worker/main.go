package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tokoku/pos-core/internal/app"
	"github.com/tokoku/pos-core/internal/inventory"
	jobmetrics "github.com/tokoku/pos-core/internal/jobs"
	"github.com/tokoku/pos-core/internal/platform/db"
	"github.com/tokoku/pos-core/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.StoreDriver != app.StoreDriverPostgres {
		slog.Default().Error("worker requires STORE_DRIVER=postgres", slog.String("driver", cfg.StoreDriver))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	inventoryRepo := inventory.NewRepository(pool, db.TxOptions{LockTimeout: cfg.TxLockTimeout, MaxAttempts: cfg.TxMaxAttempts})
	inventoryService := inventory.NewService(inventoryRepo, nil, logger)
	ledgerJob := jobs.NewLedgerVerifyJob(inventoryService, logger, jobmetrics.NewMetrics(prometheus.DefaultRegisterer))

	verifyTask, err := jobs.NewLedgerVerifyTask(jobs.LedgerVerifyPayload{})
	if err != nil {
		logger.Error("build ledger verify task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerVerify, Handler: ledgerJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.StockIntegrityCron, Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
