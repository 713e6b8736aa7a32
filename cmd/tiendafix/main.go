package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tiendafix/tiendafix/internal/app"
	"github.com/tiendafix/tiendafix/internal/catalog"
	"github.com/tiendafix/tiendafix/internal/customers"
	"github.com/tiendafix/tiendafix/internal/expenses"
	"github.com/tiendafix/tiendafix/internal/ledger"
	"github.com/tiendafix/tiendafix/internal/observability"
	"github.com/tiendafix/tiendafix/internal/platform/cache"
	"github.com/tiendafix/tiendafix/internal/platform/db"
	"github.com/tiendafix/tiendafix/internal/register"
	"github.com/tiendafix/tiendafix/internal/sales"
	"github.com/tiendafix/tiendafix/internal/shared"
	"github.com/tiendafix/tiendafix/jobs"
)

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()
	engine := ledger.NewEngine()

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerCache := ledger.NewCache(redisClient, cfg.SummaryCacheTTL)
	ledgerService := ledger.NewService(ledgerRepo, engine, auditLogger, ledgerCache, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	registerRepo := register.NewRepository(dbpool)
	registerCache := register.NewCache(redisClient, cfg.SummaryCacheTTL)
	registerService := register.NewService(registerRepo, auditLogger, registerCache, metrics, logger, cfg.BusinessDayCutoffHour)
	registerHandler := register.NewHandler(logger, registerService)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogHandler := catalog.NewHandler(logger, catalogRepo)

	customersRepo := customers.NewRepository(dbpool)
	customersHandler := customers.NewHandler(logger, customersRepo)

	salesRepo := sales.NewRepository(dbpool, ledgerRepo, catalogRepo)
	salesService := sales.NewService(salesRepo, engine, registerService, auditLogger, metrics, logger, cfg.WalkInCustomerID)
	salesService.WithIdempotency(shared.NewIdempotencyStore(dbpool))
	salesService.WithLedgerCache(ledgerCache)
	salesHandler := sales.NewHandler(logger, salesService)

	expensesRepo := expenses.NewRepository(dbpool)
	expensesService := expenses.NewService(expensesRepo, registerService, auditLogger, logger)
	expensesHandler := expenses.NewHandler(logger, expensesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledgerHandler,
		SalesHandler:     salesHandler,
		RegisterHandler:  registerHandler,
		ExpensesHandler:  expensesHandler,
		CatalogHandler:   catalogHandler,
		CustomersHandler: customersHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
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
