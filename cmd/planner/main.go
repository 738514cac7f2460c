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
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/resource-planning/cmd/planner/cli"
	"github.com/odyssey-erp/resource-planning/internal/app"
	approvalshttp "github.com/odyssey-erp/resource-planning/internal/approvals/http"
	consolidationhttp "github.com/odyssey-erp/resource-planning/internal/consolidation/http"
	"github.com/odyssey-erp/resource-planning/internal/notifications"
	notificationshttp "github.com/odyssey-erp/resource-planning/internal/notifications/http"
	"github.com/odyssey-erp/resource-planning/internal/observability"
	periodshttp "github.com/odyssey-erp/resource-planning/internal/periods/http"
	planninghttp "github.com/odyssey-erp/resource-planning/internal/planning/http"
	"github.com/odyssey-erp/resource-planning/internal/platform/cache"
	"github.com/odyssey-erp/resource-planning/internal/platform/db"
	"github.com/odyssey-erp/resource-planning/jobs"
	"github.com/odyssey-erp/resource-planning/migrations"
)

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func main() {
	if len(os.Args) > 1 {
		os.Exit(runCLI())
	}
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

	if cfg.MigrationsAuto {
		if err := db.Migrate(cfg.PGDSN, migrations.FS, logger); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("planner"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	ready := []app.Pinger{dbpool}
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		// The dashboard is built uncached and notification runs rely on the database constraint alone.
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		ready = append(ready, redisPinger{client: redisClient})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	var jobClient *jobs.Client
	if redisClient != nil && cfg.Notifications.Mode == notifications.ModeQueue {
		jobClient, err = jobs.NewClient(cfg.AsynqRedis())
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
	}
	backends := app.Backends{Pool: dbpool, Redis: redisClient, Metrics: metrics}
	if jobClient != nil {
		backends.Queue = jobClient
	}
	services := app.NewServices(cfg, backends, logger)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(cfg.AsynqRedis())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		PeriodsHandler:       periodshttp.NewHandler(logger, services.Periods),
		PlanningHandler:      planninghttp.NewHandler(logger, services.Planning),
		ApprovalsHandler:     approvalshttp.NewHandler(logger, services.Approvals),
		ConsolidationHandler: consolidationhttp.NewHandler(logger, services.Consolidation),
		NotificationsHandler: notificationshttp.NewHandler(logger, services.Notifications),
		JobHandler:           jobHandler,
		Metrics:              metrics,
		Ready:                ready,
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

func runCLI() int {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	root := cli.NewRootCmd(func() (*cli.JobsCLI, error) {
		return cli.NewJobsCLI(cfg.AsynqRedis())
	})
	if err := root.Execute(); err != nil {
		slog.Default().Error("planner", slog.Any("error", err))
		return 1
	}
	return 0
}
