package consolidationhttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/internal/consolidation"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

type stubService struct {
	consolidationService
	dashboard func(ctx context.Context, actor shared.Actor, periodID uuid.UUID) (consolidation.Dashboard, error)
	publish   func(ctx context.Context, actor shared.Actor, in consolidation.PublishInput) (consolidation.Snapshot, error)
	get       func(ctx context.Context, actor shared.Actor, id uuid.UUID) (consolidation.Snapshot, error)
}

func (s *stubService) Dashboard(ctx context.Context, actor shared.Actor, periodID uuid.UUID) (consolidation.Dashboard, error) {
	return s.dashboard(ctx, actor, periodID)
}

func (s *stubService) PublishSnapshot(ctx context.Context, actor shared.Actor, in consolidation.PublishInput) (consolidation.Snapshot, error) {
	return s.publish(ctx, actor, in)
}

func (s *stubService) GetSnapshot(ctx context.Context, actor shared.Actor, id uuid.UUID) (consolidation.Snapshot, error) {
	return s.get(ctx, actor, id)
}

func newTestRouter(svc consolidationService, role shared.Role) http.Handler {
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

func TestDashboardForbiddenForEmployee(t *testing.T) {
	svc := &stubService{dashboard: func(_ context.Context, actor shared.Actor, _ uuid.UUID) (consolidation.Dashboard, error) {
		return consolidation.Dashboard{}, actor.Require(shared.CapViewConsolidation)
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, shared.RoleEmployee).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/consolidation/dashboard/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDashboardRejectsMalformedPeriodID(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&stubService{}, shared.RoleFinance).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/consolidation/dashboard/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPublishReturnsCreated(t *testing.T) {
	periodID := uuid.New()
	svc := &stubService{publish: func(_ context.Context, actor shared.Actor, in consolidation.PublishInput) (consolidation.Snapshot, error) {
		require.Equal(t, periodID, in.PeriodID)
		require.Equal(t, "April", in.Name)
		return consolidation.Snapshot{ID: uuid.New(), PeriodID: in.PeriodID, Name: in.Name, PublishedBy: actor.UserID, PublishedAt: time.Now(), LinesCount: 4}, nil
	}}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/consolidation/publish/"+periodID.String(), strings.NewReader(`{"name":"April"}`))
	newTestRouter(svc, shared.RoleFinance).ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var body snapshotResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 4, body.LinesCount)
	require.Nil(t, body.Description)
}

func TestPublishRequiresName(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/consolidation/publish/"+uuid.NewString(), strings.NewReader(`{"description":"x"}`))
	newTestRouter(&stubService{}, shared.RoleFinance).ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetSnapshotIncludesLines(t *testing.T) {
	id := uuid.New()
	fte := 50
	svc := &stubService{get: func(context.Context, shared.Actor, uuid.UUID) (consolidation.Snapshot, error) {
		return consolidation.Snapshot{ID: id, LinesCount: 1, Lines: []consolidation.SnapshotLine{{ID: uuid.New(), LineType: consolidation.LineDemand, FTEPercent: &fte}}}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, shared.RoleDirector).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/consolidation/snapshots/"+id.String(), nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body snapshotResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Lines, 1)
	require.Equal(t, 50, *body.Lines[0].FTEPercent)
}
