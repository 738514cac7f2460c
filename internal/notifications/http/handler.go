package notificationshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/resource-planning/internal/notifications"
	"github.com/odyssey-erp/resource-planning/internal/platform/httpx"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

type notificationService interface {
	Preview(ctx context.Context, actor shared.Actor, phase notifications.Phase, ym shared.YearMonth) (notifications.Preview, error)
	Run(ctx context.Context, actor shared.Actor, phase notifications.Phase, ym shared.YearMonth) (notifications.RunResult, error)
	Logs(ctx context.Context, actor shared.Actor, f notifications.LogFilter) ([]notifications.Log, error)
	Deadline(ctx context.Context, tenantID string, phase notifications.Phase, ym shared.YearMonth) (time.Time, error)
	DayDeadline(ctx context.Context, tenantID string, ym shared.YearMonth, baseDay int) (time.Time, error)
}

// Handler exposes reminder preview, run and log endpoints.
type Handler struct {
	logger  *slog.Logger
	service notificationService
}

// NewHandler constructs a notifications HTTP handler.
func NewHandler(logger *slog.Logger, service notificationService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/preview", h.preview)
		r.Post("/run", h.run)
		r.Get("/logs", h.logs)
		r.Get("/deadline", h.deadline)
	})
}

func phaseAndMonth(r *http.Request) (notifications.Phase, shared.YearMonth, error) {
	phase, err := notifications.ParsePhase(strings.TrimSpace(r.URL.Query().Get("phase")))
	if err != nil {
		return "", shared.YearMonth{}, err
	}
	ym, err := httpx.QueryYearMonth(r)
	return phase, ym, err
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	phase, ym, err := phaseAndMonth(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Preview(r.Context(), actor, phase, ym)
	if err != nil {
		h.fail(w, "preview notifications", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	phase, ym, err := phaseAndMonth(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Run(r.Context(), actor, phase, ym)
	if err != nil {
		h.fail(w, "run notifications", err)
		return
	}
	if res.Notifications == nil {
		res.Notifications = []notifications.Log{}
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var f notifications.LogFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("phase")); raw != "" {
		phase, err := notifications.ParsePhase(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		f.Phase = &phase
	}
	var err error
	if f.Year, err = httpx.QueryInt(r, "year"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.Month, err = httpx.QueryInt(r, "month"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.RunID, err = httpx.QueryUUID(r, "run_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.service.Logs(r.Context(), actor, f)
	if err != nil {
		h.fail(w, "list notification logs", err)
		return
	}
	if logs == nil {
		logs = []notifications.Log{}
	}
	httpx.JSON(w, http.StatusOK, logs)
}

type deadlineResponse struct {
	Phase    string `json:"phase,omitempty"`
	BaseDay  int    `json:"base_day,omitempty"`
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Deadline string `json:"deadline"`
}

// deadline answers for either a phase or a plain base_day; any signed-in user may ask.
func (h *Handler) deadline(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	ym, err := httpx.QueryYearMonth(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := deadlineResponse{Year: ym.Year, Month: ym.Month}
	var at time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("phase")); raw != "" {
		phase, err := notifications.ParsePhase(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		resp.Phase = string(phase)
		at, err = h.service.Deadline(r.Context(), actor.TenantID, phase, ym)
		if err != nil {
			h.fail(w, "phase deadline", err)
			return
		}
	} else {
		baseDay, err := httpx.QueryInt(r, "base_day")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if baseDay == nil {
			httpx.RespondError(w, shared.Validation("phase or base_day is required"))
			return
		}
		resp.BaseDay = *baseDay
		at, err = h.service.DayDeadline(r.Context(), actor.TenantID, ym, *baseDay)
		if err != nil {
			h.fail(w, "day deadline", err)
			return
		}
	}
	resp.Deadline = at.Format(time.DateOnly)
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.CodeOf(err) == shared.CodeInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
