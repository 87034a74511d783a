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
	"github.com/compras-erp/compras-erp/internal/budgets"
	jobmetrics "github.com/compras-erp/compras-erp/internal/jobs"
	"github.com/compras-erp/compras-erp/internal/observability"
	"github.com/compras-erp/compras-erp/internal/requests"
	"github.com/compras-erp/compras-erp/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker exposes its own /metrics endpoint: the drift gauge is only
	// ever set here, where the reconcile cron runs.
	appMetrics := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(appMetrics.Registerer())

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: appMetrics.Handler()}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}()

	requestsRepo := requests.NewRepository(pool)
	requestsService := requests.NewService(requestsRepo, logger, nil, nil)

	budgetsRepo := budgets.NewRepository(pool)
	budgetsService := budgets.NewService(budgetsRepo, logger, appMetrics)

	mailer := jobs.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, pool, logger)

	reconcileTask, err := jobs.NewReconcileBudgetsTask(jobs.ReconcileBudgetsPayload{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.Instrument("send_email", metrics, mailer.HandleSendEmail)},
			{Type: jobs.TaskTypeActivateScheduled, Handler: jobs.Instrument("activate_scheduled", metrics, jobs.NewActivateScheduledHandler(requestsService, logger))},
			{Type: jobs.TaskTypeReconcileBudgets, Handler: jobs.Instrument("reconcile_budgets", metrics, jobs.NewReconcileBudgetsHandler(budgetsService, logger))},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: jobs.NewActivateScheduledTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 1 * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
