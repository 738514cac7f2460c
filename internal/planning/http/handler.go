package planninghttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/planning"
	"github.com/odyssey-erp/resource-planning/internal/platform/httpx"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

type planningService interface {
	ListDemand(ctx context.Context, actor shared.Actor, f planning.Filter) ([]planning.DemandLine, error)
	GetDemand(ctx context.Context, actor shared.Actor, id uuid.UUID) (planning.DemandLine, error)
	CreateDemand(ctx context.Context, actor shared.Actor, in planning.DemandInput) (planning.DemandLine, error)
	UpdateDemand(ctx context.Context, actor shared.Actor, id uuid.UUID, fte int) (planning.DemandLine, error)
	DeleteDemand(ctx context.Context, actor shared.Actor, id uuid.UUID) error

	ListSupply(ctx context.Context, actor shared.Actor, f planning.Filter) ([]planning.SupplyLine, error)
	GetSupply(ctx context.Context, actor shared.Actor, id uuid.UUID) (planning.SupplyLine, error)
	CreateSupply(ctx context.Context, actor shared.Actor, in planning.SupplyInput) (planning.SupplyLine, error)
	UpdateSupply(ctx context.Context, actor shared.Actor, id uuid.UUID, fte int) (planning.SupplyLine, error)
	DeleteSupply(ctx context.Context, actor shared.Actor, id uuid.UUID) error

	ListActuals(ctx context.Context, actor shared.Actor, f planning.Filter) ([]planning.ActualLine, error)
	MyActuals(ctx context.Context, actor shared.Actor, f planning.Filter) ([]planning.ActualLine, error)
	GetActual(ctx context.Context, actor shared.Actor, id uuid.UUID) (planning.ActualLine, error)
	ResourceMonthlyTotal(ctx context.Context, actor shared.Actor, resourceID uuid.UUID, ym shared.YearMonth) (planning.MonthlyTotal, error)
	CreateActual(ctx context.Context, actor shared.Actor, in planning.ActualInput) (planning.ActualLine, error)
	UpdateActual(ctx context.Context, actor shared.Actor, id uuid.UUID, fte int) (planning.ActualLine, error)
	DeleteActual(ctx context.Context, actor shared.Actor, id uuid.UUID) error
	Sign(ctx context.Context, actor shared.Actor, id uuid.UUID) (planning.ActualLine, error)
	ProxySign(ctx context.Context, actor shared.Actor, id uuid.UUID, reason string) (planning.ActualLine, error)

	ListOOP(ctx context.Context, actor shared.Actor, f planning.Filter) ([]planning.OOPLine, error)
	CreateOOP(ctx context.Context, actor shared.Actor, in planning.OOPInput) (planning.OOPLine, error)
}

// Handler exposes demand, supply, actuals and out-of-pool endpoints.
type Handler struct {
	logger  *slog.Logger
	service planningService
}

// NewHandler constructs a planning HTTP handler.
func NewHandler(logger *slog.Logger, service planningService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/demand", func(r chi.Router) {
		r.Get("/", h.listDemand)
		r.Post("/", h.createDemand)
		r.Get("/{id}", h.getDemand)
		r.Patch("/{id}", h.updateDemand)
		r.Delete("/{id}", h.deleteDemand)
	})
	r.Route("/supply", func(r chi.Router) {
		r.Get("/", h.listSupply)
		r.Post("/", h.createSupply)
		r.Get("/{id}", h.getSupply)
		r.Patch("/{id}", h.updateSupply)
		r.Delete("/{id}", h.deleteSupply)
	})
	r.Route("/actuals", func(r chi.Router) {
		r.Get("/", h.listActuals)
		r.Post("/", h.createActual)
		r.Get("/my", h.myActuals)
		r.Get("/resource/{resourceID}/total", h.resourceTotal)
		r.Get("/{id}", h.getActual)
		r.Patch("/{id}", h.updateActual)
		r.Delete("/{id}", h.deleteActual)
		r.Post("/{id}/sign", h.sign)
		r.Post("/{id}/proxy-sign", h.proxySign)
	})
	r.Route("/oop", func(r chi.Router) {
		r.Get("/", h.listOOP)
		r.Post("/", h.createOOP)
	})
}

func filterFromQuery(r *http.Request) (planning.Filter, error) {
	var f planning.Filter
	var err error
	if f.Year, err = httpx.QueryInt(r, "year"); err != nil {
		return f, err
	}
	if f.Month, err = httpx.QueryInt(r, "month"); err != nil {
		return f, err
	}
	if f.ProjectID, err = httpx.QueryUUID(r, "project_id"); err != nil {
		return f, err
	}
	if f.ResourceID, err = httpx.QueryUUID(r, "resource_id"); err != nil {
		return f, err
	}
	if f.PeriodID, err = httpx.QueryUUID(r, "period_id"); err != nil {
		return f, err
	}
	return f, nil
}

// listHandler shares the actor/filter/respond plumbing of every list endpoint.
func listHandler[T, R any](h *Handler, op string, list func(context.Context, shared.Actor, planning.Filter) ([]T, error), convert func(T) R) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := httpx.Actor(w, r)
		if !ok {
			return
		}
		f, err := filterFromQuery(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		items, err := list(r.Context(), actor, f)
		if err != nil {
			h.fail(w, op, err)
			return
		}
		out := make([]R, 0, len(items))
		for _, item := range items {
			out = append(out, convert(item))
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}

func getHandler[T, R any](h *Handler, op string, get func(context.Context, shared.Actor, uuid.UUID) (T, error), convert func(T) R) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := httpx.Actor(w, r)
		if !ok {
			return
		}
		id, ok := httpx.PathUUID(w, r, "id")
		if !ok {
			return
		}
		item, err := get(r.Context(), actor, id)
		if err != nil {
			h.fail(w, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, convert(item))
	}
}

type updateRequest struct {
	FTEPercent *int `json:"fte_percent" validate:"required"`
}

func updateHandler[T, R any](h *Handler, op string, update func(context.Context, shared.Actor, uuid.UUID, int) (T, error), convert func(T) R) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := httpx.Actor(w, r)
		if !ok {
			return
		}
		id, ok := httpx.PathUUID(w, r, "id")
		if !ok {
			return
		}
		var req updateRequest
		if !httpx.Bind(w, r, &req) {
			return
		}
		item, err := update(r.Context(), actor, id, *req.FTEPercent)
		if err != nil {
			h.fail(w, op, err)
			return
		}
		httpx.JSON(w, http.StatusOK, convert(item))
	}
}

func deleteHandler(h *Handler, op string, del func(context.Context, shared.Actor, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := httpx.Actor(w, r)
		if !ok {
			return
		}
		id, ok := httpx.PathUUID(w, r, "id")
		if !ok {
			return
		}
		if err := del(r.Context(), actor, id); err != nil {
			h.fail(w, op, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) listDemand(w http.ResponseWriter, r *http.Request) {
	listHandler(h, "list demand", h.service.ListDemand, toDemandResponse)(w, r)
}

func (h *Handler) getDemand(w http.ResponseWriter, r *http.Request) {
	getHandler(h, "get demand", h.service.GetDemand, toDemandResponse)(w, r)
}

func (h *Handler) updateDemand(w http.ResponseWriter, r *http.Request) {
	updateHandler(h, "update demand", h.service.UpdateDemand, toDemandResponse)(w, r)
}

func (h *Handler) deleteDemand(w http.ResponseWriter, r *http.Request) {
	deleteHandler(h, "delete demand", h.service.DeleteDemand)(w, r)
}

type createDemandRequest struct {
	ProjectID     uuid.UUID  `json:"project_id" validate:"required"`
	ResourceID    *uuid.UUID `json:"resource_id"`
	PlaceholderID *uuid.UUID `json:"placeholder_id"`
	Year          int        `json:"year" validate:"required"`
	Month         int        `json:"month" validate:"required"`
	FTEPercent    int        `json:"fte_percent"`
}

func (h *Handler) createDemand(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req createDemandRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	line, err := h.service.CreateDemand(r.Context(), actor, planning.DemandInput{
		ProjectID:     req.ProjectID,
		ResourceID:    req.ResourceID,
		PlaceholderID: req.PlaceholderID,
		Period:        shared.YearMonth{Year: req.Year, Month: req.Month},
		FTEPercent:    req.FTEPercent,
	})
	if err != nil {
		h.fail(w, "create demand", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDemandResponse(line))
}

func (h *Handler) listSupply(w http.ResponseWriter, r *http.Request) {
	listHandler(h, "list supply", h.service.ListSupply, toSupplyResponse)(w, r)
}

func (h *Handler) getSupply(w http.ResponseWriter, r *http.Request) {
	getHandler(h, "get supply", h.service.GetSupply, toSupplyResponse)(w, r)
}

func (h *Handler) updateSupply(w http.ResponseWriter, r *http.Request) {
	updateHandler(h, "update supply", h.service.UpdateSupply, toSupplyResponse)(w, r)
}

func (h *Handler) deleteSupply(w http.ResponseWriter, r *http.Request) {
	deleteHandler(h, "delete supply", h.service.DeleteSupply)(w, r)
}

type createSupplyRequest struct {
	ResourceID uuid.UUID  `json:"resource_id" validate:"required"`
	ProjectID  *uuid.UUID `json:"project_id"`
	Year       int        `json:"year" validate:"required"`
	Month      int        `json:"month" validate:"required"`
	FTEPercent int        `json:"fte_percent"`
}

func (h *Handler) createSupply(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req createSupplyRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	line, err := h.service.CreateSupply(r.Context(), actor, planning.SupplyInput{
		ResourceID: req.ResourceID,
		ProjectID:  req.ProjectID,
		Period:     shared.YearMonth{Year: req.Year, Month: req.Month},
		FTEPercent: req.FTEPercent,
	})
	if err != nil {
		h.fail(w, "create supply", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSupplyResponse(line))
}

func (h *Handler) listActuals(w http.ResponseWriter, r *http.Request) {
	listHandler(h, "list actuals", h.service.ListActuals, toActualResponse)(w, r)
}

func (h *Handler) myActuals(w http.ResponseWriter, r *http.Request) {
	listHandler(h, "my actuals", h.service.MyActuals, toActualResponse)(w, r)
}

func (h *Handler) getActual(w http.ResponseWriter, r *http.Request) {
	getHandler(h, "get actual", h.service.GetActual, toActualResponse)(w, r)
}

func (h *Handler) updateActual(w http.ResponseWriter, r *http.Request) {
	updateHandler(h, "update actual", h.service.UpdateActual, toActualResponse)(w, r)
}

func (h *Handler) deleteActual(w http.ResponseWriter, r *http.Request) {
	deleteHandler(h, "delete actual", h.service.DeleteActual)(w, r)
}

func (h *Handler) resourceTotal(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	resourceID, ok := httpx.PathUUID(w, r, "resourceID")
	if !ok {
		return
	}
	ym, err := httpx.QueryYearMonth(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.ResourceMonthlyTotal(r.Context(), actor, resourceID, ym)
	if err != nil {
		h.fail(w, "resource total", err)
		return
	}
	httpx.JSON(w, http.StatusOK, total)
}

type createActualRequest struct {
	ResourceID        uuid.UUID `json:"resource_id" validate:"required"`
	ProjectID         uuid.UUID `json:"project_id" validate:"required"`
	Year              int       `json:"year" validate:"required"`
	Month             int       `json:"month" validate:"required"`
	FTEPercent        *int      `json:"actual_fte_percent" validate:"required"`
	PlannedFTEPercent *int      `json:"planned_fte_percent"`
}

func (h *Handler) createActual(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req createActualRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	line, err := h.service.CreateActual(r.Context(), actor, planning.ActualInput{
		ResourceID:        req.ResourceID,
		ProjectID:         req.ProjectID,
		Period:            shared.YearMonth{Year: req.Year, Month: req.Month},
		FTEPercent:        *req.FTEPercent,
		PlannedFTEPercent: req.PlannedFTEPercent,
	})
	if err != nil {
		h.fail(w, "create actual", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toActualResponse(line))
}

func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "id")
	if !ok {
		return
	}
	line, err := h.service.Sign(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "sign actual", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActualResponse(line))
}

type proxySignRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) proxySign(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "id")
	if !ok {
		return
	}
	var req proxySignRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	line, err := h.service.ProxySign(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.fail(w, "proxy sign actual", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toActualResponse(line))
}

func (h *Handler) listOOP(w http.ResponseWriter, r *http.Request) {
	listHandler(h, "list oop", h.service.ListOOP, toOOPResponse)(w, r)
}

func (h *Handler) createOOP(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var req createOOPRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	line, err := h.service.CreateOOP(r.Context(), actor, planning.OOPInput{
		ResourceID:  req.ResourceID,
		ProjectID:   req.ProjectID,
		Period:      shared.YearMonth{Year: req.Year, Month: req.Month},
		Hours:       req.Hours,
		HourlyRate:  req.HourlyRate,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, "create oop", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOOPResponse(line))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.CodeOf(err) == shared.CodeInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
