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

	"github.com/compras-erp/compras-erp/internal/app"
	"github.com/compras-erp/compras-erp/internal/auth"
	"github.com/compras-erp/compras-erp/internal/budgets"
	"github.com/compras-erp/compras-erp/internal/notifications"
	"github.com/compras-erp/compras-erp/internal/observability"
	"github.com/compras-erp/compras-erp/internal/orders"
	"github.com/compras-erp/compras-erp/internal/platform/cache"
	"github.com/compras-erp/compras-erp/internal/platform/db"
	"github.com/compras-erp/compras-erp/internal/quotations"
	"github.com/compras-erp/compras-erp/internal/requests"
	"github.com/compras-erp/compras-erp/internal/shared"
	"github.com/compras-erp/compras-erp/internal/suppliers"
	"github.com/compras-erp/compras-erp/internal/users"
	"github.com/compras-erp/compras-erp/jobs"
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

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
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

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	usersRepo := users.NewRepository(dbpool)
	tokens := auth.NewTokenStore(redisClient, cfg.TokenTTL)
	authService := auth.NewService(usersRepo)
	authHandler := auth.NewHandler(logger, authService, tokens)
	authMiddleware := auth.Middleware{Tokens: tokens, Logger: logger}

	notifRepo := notifications.NewRepository(dbpool)
	notifService := notifications.NewService(notifRepo, usersRepo, jobsClient, logger)
	notifHandler := notifications.NewHandler(logger, notifService)

	requestsRepo := requests.NewRepository(dbpool)
	requestsService := requests.NewService(requestsRepo, logger, auditLogger, notifService)
	requestsHandler := requests.NewHandler(logger, requestsService)

	quotationsRepo := quotations.NewRepository(dbpool)
	quotationsService := quotations.NewService(quotationsRepo, logger, requestsService)
	quotationsHandler := quotations.NewHandler(logger, quotationsService)

	budgetsRepo := budgets.NewRepository(dbpool)
	budgetsService := budgets.NewService(budgetsRepo, logger, metrics)
	budgetsHandler := budgets.NewHandler(logger, budgetsService)

	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(ordersRepo, logger, quotationsService, requestsService, budgetsService, auditLogger, notifService)
	ordersHandler := orders.NewHandler(logger, ordersService)

	suppliersRepo := suppliers.NewRepository(dbpool)
	suppliersService := suppliers.NewService(suppliersRepo)
	suppliersHandler := suppliers.NewHandler(logger, suppliersService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Config:         cfg,
		Logger:         logger,
		Metrics:        metrics,
		AuthMiddleware: authMiddleware,
		Auth:           authHandler,
		Requests:       requestsHandler,
		Quotations:     quotationsHandler,
		Orders:         ordersHandler,
		Suppliers:      suppliersHandler,
		Budgets:        budgetsHandler,
		Notifications:  notifHandler,
		Jobs:           jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
