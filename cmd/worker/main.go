package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/tienbob/Tubex-sub001/internal/app"
	"github.com/tienbob/Tubex-sub001/internal/billing"
	jobmetrics "github.com/tienbob/Tubex-sub001/internal/jobs"
	"github.com/tienbob/Tubex-sub001/internal/platform/cache"
	"github.com/tienbob/Tubex-sub001/internal/platform/db"
	"github.com/tienbob/Tubex-sub001/internal/pricing"
	"github.com/tienbob/Tubex-sub001/internal/sales"
	"github.com/tienbob/Tubex-sub001/internal/shared"
	"github.com/tienbob/Tubex-sub001/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGConnLifetime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	audit := shared.NewAuditLogger(pool)
	metrics := jobmetrics.NewMetrics(nil)

	salesService := sales.NewService(sales.NewRepository(pool), audit, nil, logger)
	billingService := billing.NewService(billing.NewRepository(pool), audit, nil, logger)
	pricingService := pricing.NewService(pricing.NewRepository(pool), redisClient, cfg.PriceCacheTTL, audit, logger)

	expiryJob := jobs.NewQuoteExpiryJob(salesService, logger, metrics)
	sweepJob := jobs.NewPricingSweepJob(pricingService, logger, metrics)
	agingJob := jobs.NewAgingSnapshotJob(billingService, pool, logger, metrics)

	expiryTask, err := jobs.NewQuoteExpiryTask(time.Time{})
	if err != nil {
		logger.Error("build quote expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewPricingSweepTask(time.Time{})
	if err != nil {
		logger.Error("build pricing sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	agingTask, err := jobs.NewAgingSnapshotTask(time.Time{})
	if err != nil {
		logger.Error("build aging snapshot task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskQuoteExpiry, Handler: expiryJob.Handle},
			{Type: jobs.TaskPricingSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskAgingSnapshot, Handler: agingJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 1 * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: agingTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
