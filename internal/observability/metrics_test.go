package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/resource-planning/internal/approvals"
	"github.com/odyssey-erp/resource-planning/internal/notifications"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Start("notify:daily").Finish(nil)
	metrics.ObserveRejection("demand", shared.CodeFTEInvalid)
	metrics.ObserveApproval(approvals.StepRO, approvals.StepApproved)
	metrics.ObserveDashboard(false, 30*time.Millisecond)
	metrics.ObserveDashboard(true, 0)
	metrics.ObserveNotifications(notifications.PhaseFinance, notifications.StatusSent, 3)
	metrics.ObserveNotifications(notifications.PhaseFinance, notifications.StatusFailed, 0)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`odyssey_jobs_total{status="success",task="notify:daily"} 1`,
		`odyssey_planning_rejections_total{code="FTE_INVALID",component="demand"} 1`,
		`odyssey_planning_approval_steps_total{status="approved",step="RO"} 1`,
		`odyssey_planning_dashboard_requests_total{cache="hit"} 1`,
		`odyssey_planning_dashboard_build_seconds_count 1`,
		`odyssey_planning_notifications_total{phase="Finance",status="SENT"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %s, got: %s", want, body)
		}
	}
	if strings.Contains(body, `status="FAILED"`) {
		t.Fatalf("zero-count notifications must not create a series: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveRejection("supply", shared.CodeValidation)
	metrics.ObserveDashboard(true, 0)
	if err := metrics.Jobs().Start("notify:run").Finish(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}
