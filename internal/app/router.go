package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	approvalshttp "github.com/odyssey-erp/resource-planning/internal/approvals/http"
	consolidationhttp "github.com/odyssey-erp/resource-planning/internal/consolidation/http"
	notificationshttp "github.com/odyssey-erp/resource-planning/internal/notifications/http"
	"github.com/odyssey-erp/resource-planning/internal/observability"
	"github.com/odyssey-erp/resource-planning/internal/platform/httpx"
	periodshttp "github.com/odyssey-erp/resource-planning/internal/periods/http"
	planninghttp "github.com/odyssey-erp/resource-planning/internal/planning/http"
	"github.com/odyssey-erp/resource-planning/jobs"
)

// Pinger reports backing store health for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	PeriodsHandler       *periodshttp.Handler
	PlanningHandler      *planninghttp.Handler
	ApprovalsHandler     *approvalshttp.Handler
	ConsolidationHandler *consolidationhttp.Handler
	NotificationsHandler *notificationshttp.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
	Ready                []Pinger
}

// NewRouter constructs the chi.Router with planner defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, p := range params.Ready {
			if err := p.Ping(ctx); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Identity)
		r.Get("/me", whoami)
		if params.PeriodsHandler != nil {
			params.PeriodsHandler.MountRoutes(r)
		}
		if params.PlanningHandler != nil {
			params.PlanningHandler.MountRoutes(r)
		}
		if params.ApprovalsHandler != nil {
			params.ApprovalsHandler.MountRoutes(r)
		}
		if params.ConsolidationHandler != nil {
			params.ConsolidationHandler.MountRoutes(r)
		}
		if params.NotificationsHandler != nil {
			params.NotificationsHandler.MountRoutes(r)
		}
	})

	return r
}

func whoami(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"tenant_id": actor.TenantID,
		"user_id":   actor.UserID,
		"role":      actor.Role,
		"email":     actor.Email,
	})
}
