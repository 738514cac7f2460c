package approvalshttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/internal/approvals"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

type stubApprovalService struct {
	approvalService
	approve  func(ctx context.Context, actor shared.Actor, id, stepID uuid.UUID, comment string) (approvals.Instance, error)
	overview func(ctx context.Context, actor shared.Actor, f approvals.OverviewFilter) ([]approvals.OverviewRow, error)
}

func (s *stubApprovalService) Approve(ctx context.Context, actor shared.Actor, id, stepID uuid.UUID, comment string) (approvals.Instance, error) {
	return s.approve(ctx, actor, id, stepID, comment)
}

func (s *stubApprovalService) ActualsOverview(ctx context.Context, actor shared.Actor, f approvals.OverviewFilter) ([]approvals.OverviewRow, error) {
	return s.overview(ctx, actor, f)
}

func newTestRouter(svc approvalService, role shared.Role) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			actor := shared.Actor{TenantID: "t1", UserID: uuid.New(), Role: role}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	h.MountRoutes(r)
	return r
}

func TestApprovePassesPathIDsAndComment(t *testing.T) {
	instanceID, stepID := uuid.New(), uuid.New()
	svc := &stubApprovalService{approve: func(_ context.Context, _ shared.Actor, id, step uuid.UUID, comment string) (approvals.Instance, error) {
		require.Equal(t, instanceID, id)
		require.Equal(t, stepID, step)
		require.Equal(t, "looks right", comment)
		return approvals.Instance{ID: id, Status: approvals.InstanceApproved, Steps: []approvals.Step{{ID: step, Order: 1, Name: approvals.StepRO, Status: approvals.StepApproved}}}, nil
	}}
	rr := httptest.NewRecorder()
	url := "/approvals/" + instanceID.String() + "/steps/" + stepID.String() + "/approve"
	newTestRouter(svc, shared.RoleRO).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, url, strings.NewReader(`{"comment":"looks right"}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	var body instanceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "approved", body.Status)
	require.Len(t, body.Steps, 1)
}

func TestApproveWithoutBody(t *testing.T) {
	svc := &stubApprovalService{approve: func(_ context.Context, _ shared.Actor, id, _ uuid.UUID, comment string) (approvals.Instance, error) {
		require.Empty(t, comment)
		return approvals.Instance{ID: id}, nil
	}}
	rr := httptest.NewRecorder()
	url := "/approvals/" + uuid.NewString() + "/steps/" + uuid.NewString() + "/approve"
	newTestRouter(svc, shared.RoleRO).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, url, nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestApproveOutOfOrderIsBadRequest(t *testing.T) {
	svc := &stubApprovalService{approve: func(context.Context, shared.Actor, uuid.UUID, uuid.UUID, string) (approvals.Instance, error) {
		return approvals.Instance{}, shared.Validation("previous steps must be completed first")
	}}
	rr := httptest.NewRecorder()
	url := "/approvals/" + uuid.NewString() + "/steps/" + uuid.NewString() + "/approve"
	newTestRouter(svc, shared.RoleDirector).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, url, nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOverviewParsesFilters(t *testing.T) {
	ccID := uuid.New()
	svc := &stubApprovalService{overview: func(_ context.Context, _ shared.Actor, f approvals.OverviewFilter) ([]approvals.OverviewRow, error) {
		require.Equal(t, ccID, *f.CostCenterID)
		require.Equal(t, "pending", f.ApprovalStatus)
		require.Equal(t, 4, *f.Month)
		return []approvals.OverviewRow{{ActualID: uuid.New(), ApprovalStatus: "pending"}}, nil
	}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/finance/actuals?month=4&approval_status=pending&cost_center_id="+ccID.String(), nil)
	newTestRouter(svc, shared.RoleFinance).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var rows []approvals.OverviewRow
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
}
