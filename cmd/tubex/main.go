package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/tienbob/Tubex-sub001/internal/app"
	"github.com/tienbob/Tubex-sub001/internal/billing"
	"github.com/tienbob/Tubex-sub001/internal/masterdata/companies"
	"github.com/tienbob/Tubex-sub001/internal/masterdata/products"
	"github.com/tienbob/Tubex-sub001/internal/masterdata/warehouses"
	"github.com/tienbob/Tubex-sub001/internal/observability"
	"github.com/tienbob/Tubex-sub001/internal/platform/cache"
	"github.com/tienbob/Tubex-sub001/internal/platform/db"
	"github.com/tienbob/Tubex-sub001/internal/pricing"
	"github.com/tienbob/Tubex-sub001/internal/sales"
	"github.com/tienbob/Tubex-sub001/internal/shared"
	"github.com/tienbob/Tubex-sub001/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)
	validate := validator.New()

	salesService := sales.NewService(sales.NewRepository(pool), audit, metrics, logger)
	billingService := billing.NewService(billing.NewRepository(pool), audit, metrics, logger)
	pricingService := pricing.NewService(pricing.NewRepository(pool), redisClient, cfg.PriceCacheTTL, audit, logger)

	productsService := products.NewService(products.NewRepository(pool))
	companiesService := companies.NewService(companies.NewRepository(pool))
	warehousesService := warehouses.NewService(warehouses.NewRepository(pool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SalesHandler:      sales.NewHandler(salesService, validate),
		BillingHandler:    billing.NewHandler(billingService, validate),
		PricingHandler:    pricing.NewHandler(pricingService, validate),
		ProductsHandler:   products.NewHandler(productsService, validate),
		CompaniesHandler:  companies.NewHandler(companiesService, validate),
		WarehousesHandler: warehouses.NewHandler(warehousesService, validate),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
