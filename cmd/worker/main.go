package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/servicechange/internal/app"
	jobmetrics "github.com/odyssey-erp/servicechange/internal/jobs"
	"github.com/odyssey-erp/servicechange/internal/lifecycle"
	"github.com/odyssey-erp/servicechange/internal/notify"
	"github.com/odyssey-erp/servicechange/internal/observability"
	"github.com/odyssey-erp/servicechange/internal/platform/cache"
	"github.com/odyssey-erp/servicechange/internal/platform/db"
	"github.com/odyssey-erp/servicechange/internal/records/postgres"
	"github.com/odyssey-erp/servicechange/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.TestMode {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.New(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

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
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	mailer := notify.NewNotifier(cfg.Mailer(), logger)
	alerter := notify.NewAlerter(mailer, cfg.OperatorRecipients, "servicechange-worker", logger)

	transitioner := lifecycle.NewTransitioner(store, cfg.Transition(), logger)
	transitionJob := jobs.NewTransitionJob(store, transitioner, mailer, alerter,
		cache.NewLocker(redisClient), cfg.ReportRecipients, logger, jobMetrics)
	mailHandler := &jobs.MailHandler{Notifier: mailer, Logger: logger}

	transitionTask, err := jobs.NewTransitionTask(jobs.TransitionPayload{})
	if err != nil {
		logger.Error("build transition task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeTransition, Handler: transitionJob.Handle},
			{Type: jobs.TaskTypeSendEmail, Handler: mailHandler.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TransitionCron, Task: transitionTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("worker started", slog.String("cron", cfg.TransitionCron), slog.String("timezone", cfg.Location().String()))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
