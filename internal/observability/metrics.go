package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/resource-planning/internal/approvals"
	jobmetrics "github.com/odyssey-erp/resource-planning/internal/jobs"
	"github.com/odyssey-erp/resource-planning/internal/notifications"
	"github.com/odyssey-erp/resource-planning/internal/shared"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rejections      *prometheus.CounterVec
	approvalSteps   *prometheus.CounterVec
	dashboardBuilds *prometheus.CounterVec
	dashboardTime   prometheus.Histogram
	notifications   *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_planning_rejections_total",
		Help: "Perubahan alokasi yang ditolak per komponen dan kode galat.",
	}, []string{"component", "code"})
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_planning_approval_steps_total",
		Help: "Keputusan langkah persetujuan per langkah dan status.",
	}, []string{"step", "status"})
	builds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_planning_dashboard_requests_total",
		Help: "Permintaan dashboard konsolidasi berdasarkan hasil cache.",
	}, []string{"cache"})
	buildTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "odyssey_planning_dashboard_build_seconds",
		Help:    "Durasi pembangunan dashboard konsolidasi.",
		Buckets: prometheus.DefBuckets,
	})
	notes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_planning_notifications_total",
		Help: "Pesan pengingat yang ditulis per fase dan status.",
	}, []string{"phase", "status"})
	registry.MustRegister(requests, duration, rejections, steps, builds, buildTime, notes)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		rejections:      rejections,
		approvalSteps:   steps,
		dashboardBuilds: builds,
		dashboardTime:   buildTime,
		notifications:   notes,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Jobs mengembalikan metrik job latar belakang yang terdaftar di registry yang sama.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// ObserveRejection mencatat penolakan validasi alokasi.
func (m *Metrics) ObserveRejection(component string, code shared.Code) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(component, string(code)).Inc()
}

// ObserveApproval mencatat keputusan pada satu langkah persetujuan.
func (m *Metrics) ObserveApproval(step approvals.StepName, status approvals.StepStatus) {
	if m == nil {
		return
	}
	m.approvalSteps.WithLabelValues(string(step), string(status)).Inc()
}

// ObserveDashboard mencatat hit/miss cache dan durasi build dashboard.
func (m *Metrics) ObserveDashboard(hit bool, build time.Duration) {
	if m == nil {
		return
	}
	if hit {
		m.dashboardBuilds.WithLabelValues("hit").Inc()
		return
	}
	m.dashboardBuilds.WithLabelValues("miss").Inc()
	m.dashboardTime.Observe(build.Seconds())
}

// ObserveNotifications mencatat jumlah pesan pengingat.
func (m *Metrics) ObserveNotifications(phase notifications.Phase, status notifications.Status, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(string(phase), string(status)).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
