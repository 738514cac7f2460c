package consolidationhttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/consolidation"
	"github.com/odyssey-erp/resource-planning/internal/platform/httpx"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

type consolidationService interface {
	Dashboard(ctx context.Context, actor shared.Actor, periodID uuid.UUID) (consolidation.Dashboard, error)
	PublishSnapshot(ctx context.Context, actor shared.Actor, in consolidation.PublishInput) (consolidation.Snapshot, error)
	ListSnapshots(ctx context.Context, actor shared.Actor, periodID *uuid.UUID) ([]consolidation.Snapshot, error)
	GetSnapshot(ctx context.Context, actor shared.Actor, id uuid.UUID) (consolidation.Snapshot, error)
}

// Handler exposes the consolidation dashboard and snapshot endpoints.
type Handler struct {
	logger  *slog.Logger
	service consolidationService
}

// NewHandler constructs a consolidation HTTP handler.
func NewHandler(logger *slog.Logger, service consolidationService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/consolidation", func(r chi.Router) {
		r.Get("/dashboard/{periodID}", h.dashboard)
		r.Post("/publish/{periodID}", h.publish)
		r.Get("/snapshots", h.listSnapshots)
		r.Get("/snapshots/{id}", h.getSnapshot)
	})
}

type publishRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type snapshotResponse struct {
	ID          uuid.UUID                    `json:"id"`
	PeriodID    uuid.UUID                    `json:"period_id"`
	Name        string                       `json:"name"`
	Description *string                      `json:"description"`
	PublishedBy uuid.UUID                    `json:"published_by"`
	PublishedAt string                       `json:"published_at"`
	LinesCount  int                          `json:"lines_count"`
	Lines       []consolidation.SnapshotLine `json:"lines,omitempty"`
}

func toSnapshotResponse(s consolidation.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		ID:          s.ID,
		PeriodID:    s.PeriodID,
		Name:        s.Name,
		PublishedBy: s.PublishedBy,
		PublishedAt: s.PublishedAt.UTC().Format(time.RFC3339),
		LinesCount:  s.LinesCount,
	}
	if s.Description != "" {
		resp.Description = &s.Description
	}
	return resp
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	periodID, ok := httpx.PathUUID(w, r, "periodID")
	if !ok {
		return
	}
	dash, err := h.service.Dashboard(r.Context(), actor, periodID)
	if err != nil {
		h.fail(w, "consolidation dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	periodID, ok := httpx.PathUUID(w, r, "periodID")
	if !ok {
		return
	}
	var req publishRequest
	if !httpx.Bind(w, r, &req) {
		return
	}
	snap, err := h.service.PublishSnapshot(r.Context(), actor, consolidation.PublishInput{
		PeriodID:    periodID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, "publish snapshot", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSnapshotResponse(snap))
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	periodID, err := httpx.QueryUUID(r, "period_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	snaps, err := h.service.ListSnapshots(r.Context(), actor, periodID)
	if err != nil {
		h.fail(w, "list snapshots", err)
		return
	}
	out := make([]snapshotResponse, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toSnapshotResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "id")
	if !ok {
		return
	}
	snap, err := h.service.GetSnapshot(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get snapshot", err)
		return
	}
	resp := toSnapshotResponse(snap)
	resp.Lines = snap.Lines
	if resp.Lines == nil {
		resp.Lines = []consolidation.SnapshotLine{}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.CodeOf(err) == shared.CodeInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
