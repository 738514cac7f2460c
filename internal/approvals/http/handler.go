package approvalshttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/resource-planning/internal/approvals"
	"github.com/odyssey-erp/resource-planning/internal/platform/httpx"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

type approvalService interface {
	Inbox(ctx context.Context, actor shared.Actor) ([]approvals.Instance, error)
	Get(ctx context.Context, actor shared.Actor, id uuid.UUID) (approvals.Detail, error)
	CurrentStep(ctx context.Context, actor shared.Actor, id uuid.UUID) (*approvals.Step, error)
	Approve(ctx context.Context, actor shared.Actor, id, stepID uuid.UUID, comment string) (approvals.Instance, error)
	Reject(ctx context.Context, actor shared.Actor, id, stepID uuid.UUID, comment string) (approvals.Instance, error)
	ActualsOverview(ctx context.Context, actor shared.Actor, f approvals.OverviewFilter) ([]approvals.OverviewRow, error)
}

// Handler exposes the approval inbox, decisions and the finance overview.
type Handler struct {
	logger  *slog.Logger
	service approvalService
}

// NewHandler constructs an approvals HTTP handler.
func NewHandler(logger *slog.Logger, service approvalService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/approvals", func(r chi.Router) {
		r.Get("/inbox", h.inbox)
		r.Get("/{id}", h.get)
		r.Get("/{id}/current-step", h.currentStep)
		r.Post("/{id}/steps/{stepID}/approve", h.approve)
		r.Post("/{id}/steps/{stepID}/reject", h.reject)
	})
	r.Get("/finance/actuals", h.overview)
}

type stepResponse struct {
	ID         uuid.UUID  `json:"id"`
	StepOrder  int        `json:"step_order"`
	StepName   string     `json:"step_name"`
	ApproverID *uuid.UUID `json:"approver_id"`
	Status     string     `json:"status"`
	ActionedAt *string    `json:"actioned_at"`
	ActionedBy *uuid.UUID `json:"actioned_by"`
	Comment    string     `json:"comment,omitempty"`
}

type actionResponse struct {
	StepID    uuid.UUID `json:"step_id"`
	ActorID   uuid.UUID `json:"actor_id"`
	Action    string    `json:"action"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt string    `json:"created_at"`
}

type instanceResponse struct {
	ID          uuid.UUID        `json:"id"`
	SubjectType string           `json:"subject_type"`
	SubjectID   uuid.UUID        `json:"subject_id"`
	Status      string           `json:"status"`
	Steps       []stepResponse   `json:"steps"`
	Actions     []actionResponse `json:"actions,omitempty"`
	CreatedBy   uuid.UUID        `json:"created_by"`
	CreatedAt   string           `json:"created_at"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toStepResponse(s approvals.Step) stepResponse {
	return stepResponse{
		ID:         s.ID,
		StepOrder:  s.Order,
		StepName:   string(s.Name),
		ApproverID: s.ApproverID,
		Status:     string(s.Status),
		ActionedAt: formatTime(s.ActionedAt),
		ActionedBy: s.ActionedBy,
		Comment:    s.Comment,
	}
}

func toInstanceResponse(inst approvals.Instance) instanceResponse {
	resp := instanceResponse{
		ID:          inst.ID,
		SubjectType: inst.SubjectType,
		SubjectID:   inst.SubjectID,
		Status:      string(inst.Status),
		Steps:       make([]stepResponse, 0, len(inst.Steps)),
		CreatedBy:   inst.CreatedBy,
		CreatedAt:   inst.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, s := range inst.Steps {
		resp.Steps = append(resp.Steps, toStepResponse(s))
	}
	return resp
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	items, err := h.service.Inbox(r.Context(), actor)
	if err != nil {
		h.fail(w, "approval inbox", err)
		return
	}
	out := make([]instanceResponse, 0, len(items))
	for _, inst := range items {
		out = append(out, toInstanceResponse(inst))
	}
	httpx.JSON(w, http.StatusOK, out)
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
	detail, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get approval", err)
		return
	}
	resp := toInstanceResponse(detail.Instance)
	for _, a := range detail.Actions {
		resp.Actions = append(resp.Actions, actionResponse{
			StepID:    a.StepID,
			ActorID:   a.ActorID,
			Action:    a.Action,
			Comment:   a.Comment,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) currentStep(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "id")
	if !ok {
		return
	}
	step, err := h.service.CurrentStep(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "current step", err)
		return
	}
	if step == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.JSON(w, http.StatusOK, toStepResponse(*step))
}

type decisionRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approve step", h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "reject step", h.service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, shared.Actor, uuid.UUID, uuid.UUID, string) (approvals.Instance, error)) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	id, ok := httpx.PathUUID(w, r, "id")
	if !ok {
		return
	}
	stepID, ok := httpx.PathUUID(w, r, "stepID")
	if !ok {
		return
	}
	var req decisionRequest
	if r.ContentLength != 0 && !httpx.Bind(w, r, &req) {
		return
	}
	inst, err := fn(r.Context(), actor, id, stepID, req.Comment)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInstanceResponse(inst))
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.Actor(w, r)
	if !ok {
		return
	}
	var (
		f   approvals.OverviewFilter
		err error
	)
	if f.Year, err = httpx.QueryInt(r, "year"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.Month, err = httpx.QueryInt(r, "month"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.ProjectID, err = httpx.QueryUUID(r, "project_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if f.CostCenterID, err = httpx.QueryUUID(r, "cost_center_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	f.ApprovalStatus = strings.TrimSpace(r.URL.Query().Get("approval_status"))
	rows, err := h.service.ActualsOverview(r.Context(), actor, f)
	if err != nil {
		h.fail(w, "actuals overview", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.CodeOf(err) == shared.CodeInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
