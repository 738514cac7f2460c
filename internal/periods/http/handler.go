package periodshttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/periods"
	"github.com/odyssey-erp/resource-planning/internal/platform/httpx"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

type periodService interface {
	List(ctx context.Context, actor shared.Actor) ([]periods.Period, error)
	Get(ctx context.Context, actor shared.Actor, id uuid.UUID) (periods.Period, error)
	Current(ctx context.Context, actor shared.Actor) (periods.Period, error)
	IsLocked(ctx context.Context, tenantID string, ym shared.YearMonth) (bool, error)
	Open(ctx context.Context, actor shared.Actor, ym shared.YearMonth) (periods.Period, error)
	Lock(ctx context.Context, actor shared.Actor, id uuid.UUID) (periods.Period, error)
	Unlock(ctx context.Context, actor shared.Actor, in periods.UnlockInput) (periods.Period, error)
}

// Handler wires HTTP endpoints for the period lifecycle.
type Handler struct {
	logger  *slog.Logger
	service periodService
}

// NewHandler constructs a periods HTTP handler.
func NewHandler(logger *slog.Logger, service periodService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/current", h.current)
		r.Get("/is-locked", h.isLocked)
		r.Get("/{id}", h.get)
		r.Post("/{id}/lock", h.lock)
		r.Post("/{id}/unlock", h.unlock)
	})
}

type periodResponse struct {
	ID         uuid.UUID  `json:"id"`
	Year       int        `json:"year"`
	Month      int        `json:"month"`
	Status     string     `json:"status"`
	LockedAt   *string    `json:"locked_at,omitempty"`
	LockedBy   *uuid.UUID `json:"locked_by,omitempty"`
	LockReason string     `json:"lock_reason,omitempty"`
}

func toResponse(p periods.Period) periodResponse {
	resp := periodResponse{
		ID:         p.ID,
		Year:       p.Year,
		Month:      p.Month,
		Status:     string(p.Status),
		LockedBy:   p.LockedBy,
		LockReason: p.LockReason,
	}
	if p.LockedAt != nil {
		s := p.LockedAt.UTC().Format(time.RFC3339)
		resp.LockedAt = &s
	}
	return resp
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.fail(w, "list periods", err)
		return
	}
	out := make([]periodResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	p, err := h.service.Current(r.Context(), actor)
	if err != nil {
		h.fail(w, "current period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

type lockStatusResponse struct {
	Year   int  `json:"year"`
	Month  int  `json:"month"`
	Locked bool `json:"locked"`
}

// isLocked answers false for months without a period.
func (h *Handler) isLocked(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	ym, err := httpx.QueryYearMonth(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	locked, err := h.service.IsLocked(r.Context(), actor.TenantID, ym)
	if err != nil {
		h.fail(w, "period lock status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lockStatusResponse{Year: ym.Year, Month: ym.Month, Locked: locked})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

type createRequest struct {
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p, err := h.service.Open(r.Context(), actor, shared.YearMonth{Year: req.Year, Month: req.Month})
	if err != nil {
		h.fail(w, "open period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.service.Lock(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "lock period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

type unlockRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "id")
	if !ok {
		return
	}
	var req unlockRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	p, err := h.service.Unlock(r.Context(), actor, periods.UnlockInput{PeriodID: id, Reason: req.Reason})
	if err != nil {
		h.fail(w, "unlock period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.CodeOf(err) == shared.CodeInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
