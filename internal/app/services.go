package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/resource-planning/internal/approvals"
	"github.com/odyssey-erp/resource-planning/internal/consolidation"
	"github.com/odyssey-erp/resource-planning/internal/directory"
	"github.com/odyssey-erp/resource-planning/internal/notifications"
	"github.com/odyssey-erp/resource-planning/internal/observability"
	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/planning"
	"github.com/odyssey-erp/resource-planning/internal/platform/locks"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Services holds the core components shared by the API and the worker.
type Services struct {
	Periods       *periods.Service
	Planning      *planning.Service
	Approvals     *approvals.Service
	Consolidation *consolidation.Service
	Notifications *notifications.Service
}

// Backends are the process-wide clients the components are built on.
type Backends struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	// Queue and Sender are only needed where queued notifications are handed off or delivered.
	Queue  notifications.Enqueuer
	Sender notifications.Sender
}

// NewServices wires every component against the shared backends.
func NewServices(cfg *Config, b Backends, logger *slog.Logger) *Services {
	audit := shared.NewAuditLogger(b.Pool)
	dir := directory.NewRepository(b.Pool)

	periodSvc := periods.NewService(periods.NewRepository(b.Pool), audit, logger)

	approvalSvc := approvals.NewService(approvals.NewRepository(b.Pool), dir, audit, logger)
	approvalSvc.WithObserver(b.Metrics)

	var cache *consolidation.Cache
	if b.Redis != nil {
		cache = consolidation.NewCache(b.Redis, cfg.DashboardCacheTTL)
	}

	lines := planning.NewRepository(b.Pool)
	planningSvc := planning.NewService(lines, dir, audit, approvalSvc, cfg.Planning, logger)
	planningSvc.WithObserver(b.Metrics)
	if cache != nil {
		planningSvc.WithCache(cache)
	}

	consolidationSvc := consolidation.NewService(consolidation.NewRepository(b.Pool), lines, dir, audit, logger)
	consolidationSvc.WithObserver(b.Metrics)
	if cache != nil {
		consolidationSvc.WithCache(cache)
	}

	var locker locks.Locker = locks.Noop{}
	if b.Redis != nil {
		locker = locks.NewRedisLocker(b.Redis, locks.Options{})
	}
	notificationSvc := notifications.NewService(notifications.NewRepository(b.Pool), dir, audit, locker, cfg.Notifications, logger)
	notificationSvc.WithObserver(b.Metrics)
	notificationSvc.WithDelivery(b.Queue, b.Sender)

	return &Services{
		Periods:       periodSvc,
		Planning:      planningSvc,
		Approvals:     approvalSvc,
		Consolidation: consolidationSvc,
		Notifications: notificationSvc,
	}
}
