package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/servicechange/cmd/servicechange/cli"
	"github.com/odyssey-erp/servicechange/internal/app"
	"github.com/odyssey-erp/servicechange/internal/editing"
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

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, logger, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.New(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

	var lookupRedis redis.Cmdable
	if !cfg.TestMode {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, lookups served from postgres", slog.Any("error", err))
		} else {
			lookupRedis = redisClient
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	// Alert mail is queued for the worker; in test mode it only reaches the log.
	var mail notify.Notifier = jobClient
	if cfg.TestMode {
		mail = notify.NewNotifier(cfg.Mailer(), logger)
	}
	alerter := notify.NewAlerter(mail, cfg.OperatorRecipients, "servicechange", logger)

	metrics := observability.NewMetrics()
	lookups := editing.NewLookupCache(store, lookupRedis, cfg.LookupCacheTTL, logger)
	editingService := editing.NewService(store, lookups, logger)
	editingHandler := editing.NewHandler(editingService, alerter, logger).WithMetrics(metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		EditingHandler: editingHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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

type jobsCommand interface {
	Run(ctx context.Context, args []string, stdout io.Writer) error
	Close() error
}

func runJobsCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	c, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	return runJobs(ctx, c, logger, args, os.Stdout)
}

func runJobs(ctx context.Context, c jobsCommand, logger *slog.Logger, args []string, stdout io.Writer) error {
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	return c.Run(ctx, args, stdout)
}
