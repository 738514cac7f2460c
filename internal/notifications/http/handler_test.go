package notificationshttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/resource-planning/internal/notifications"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

type stubService struct {
	notificationService
	run      func(ctx context.Context, actor shared.Actor, phase notifications.Phase, ym shared.YearMonth) (notifications.RunResult, error)
	logs     func(ctx context.Context, actor shared.Actor, f notifications.LogFilter) ([]notifications.Log, error)
	deadline func(ctx context.Context, tenantID string, phase notifications.Phase, ym shared.YearMonth) (time.Time, error)
	dayDue   func(ctx context.Context, tenantID string, ym shared.YearMonth, baseDay int) (time.Time, error)
}

func (s *stubService) Run(ctx context.Context, actor shared.Actor, phase notifications.Phase, ym shared.YearMonth) (notifications.RunResult, error) {
	return s.run(ctx, actor, phase, ym)
}

func (s *stubService) Logs(ctx context.Context, actor shared.Actor, f notifications.LogFilter) ([]notifications.Log, error) {
	return s.logs(ctx, actor, f)
}

func (s *stubService) Deadline(ctx context.Context, tenantID string, phase notifications.Phase, ym shared.YearMonth) (time.Time, error) {
	return s.deadline(ctx, tenantID, phase, ym)
}

func (s *stubService) DayDeadline(ctx context.Context, tenantID string, ym shared.YearMonth, baseDay int) (time.Time, error) {
	return s.dayDue(ctx, tenantID, ym, baseDay)
}

func newTestRouter(svc notificationService, role shared.Role) http.Handler {
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

func TestRunPassesPhaseAndMonth(t *testing.T) {
	runID := uuid.New()
	svc := &stubService{run: func(_ context.Context, _ shared.Actor, phase notifications.Phase, ym shared.YearMonth) (notifications.RunResult, error) {
		require.Equal(t, notifications.PhaseFinance, phase)
		require.Equal(t, shared.YearMonth{Year: 2026, Month: 4}, ym)
		return notifications.RunResult{Status: notifications.OutcomeAlreadyRun, RunID: runID, Phase: phase, Year: ym.Year, Month: ym.Month}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, shared.RoleFinance).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/notifications/run?phase=Finance&year=2026&month=4", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "already_run", body["status"])
	require.Equal(t, runID.String(), body["run_id"])
	require.Equal(t, []any{}, body["notifications"])
}

func TestRunRejectsUnknownPhase(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&stubService{}, shared.RoleAdmin).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/notifications/run?phase=Weekly&year=2026&month=4", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRunForbiddenForPM(t *testing.T) {
	svc := &stubService{run: func(_ context.Context, actor shared.Actor, _ notifications.Phase, _ shared.YearMonth) (notifications.RunResult, error) {
		return notifications.RunResult{}, actor.Require(shared.CapManageNotifications)
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, shared.RolePM).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/notifications/run?phase=PM_RO&year=2026&month=4", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestLogsFilters(t *testing.T) {
	runID := uuid.New()
	svc := &stubService{logs: func(_ context.Context, _ shared.Actor, f notifications.LogFilter) ([]notifications.Log, error) {
		require.NotNil(t, f.Phase)
		require.Equal(t, notifications.PhaseEmployee, *f.Phase)
		require.Equal(t, 2026, *f.Year)
		require.Nil(t, f.Month)
		require.Equal(t, runID, *f.RunID)
		return nil, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, shared.RoleAdmin).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/logs?phase=Employee&year=2026&run_id="+runID.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())
}

func TestDeadlineByPhaseOrBaseDay(t *testing.T) {
	svc := &stubService{
		deadline: func(_ context.Context, tenantID string, phase notifications.Phase, _ shared.YearMonth) (time.Time, error) {
			require.Equal(t, "t1", tenantID)
			require.Equal(t, notifications.PhasePMRO, phase)
			return time.Date(2026, 4, 7, 0, 0, 0, 0, time.UTC), nil
		},
		dayDue: func(_ context.Context, _ string, _ shared.YearMonth, baseDay int) (time.Time, error) {
			require.Equal(t, 5, baseDay)
			return time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC), nil
		},
	}
	router := newTestRouter(svc, shared.RoleEmployee)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/deadline?phase=PM_RO&year=2026&month=4", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"phase":"PM_RO","year":2026,"month":4,"deadline":"2026-04-07"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/deadline?base_day=5&year=2026&month=4", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"base_day":5,"year":2026,"month":4,"deadline":"2026-04-06"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/deadline?year=2026&month=4", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
