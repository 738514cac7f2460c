// Package jobmetrics instruments asynq task handlers.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics holds the collectors shared by every task handler of a process.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics registers the task collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Task executions by task type and status.",
		}, []string{"task", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Task execution time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"task"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_job_items_total",
			Help: "Items handled by tasks (runs recorded, messages sent) by outcome.",
		}, []string{"task", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful execution per task type.",
		}, []string{"task"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.duration, m.items, m.lastSuccess)
	}
	return m
}

// Run instruments one task execution. A nil *Run (from nil Metrics) is valid and records nothing.
type Run struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Start begins timing an execution of task.
func (m *Metrics) Start(task string) *Run {
	if m == nil {
		return nil
	}
	return &Run{metrics: m, task: task, start: time.Now()}
}

// Add counts n items with the given outcome. Zero and negative counts are ignored.
func (r *Run) Add(outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.metrics.items.WithLabelValues(r.task, outcome).Add(float64(n))
}

// Finish records the execution and hands err back so it can be used in a deferred assignment.
func (r *Run) Finish(err error) error {
	if r == nil {
		return err
	}
	status := statusSuccess
	if err != nil {
		status = statusFailure
	} else {
		r.metrics.lastSuccess.WithLabelValues(r.task).SetToCurrentTime()
	}
	r.metrics.runs.WithLabelValues(r.task, status).Inc()
	r.metrics.duration.WithLabelValues(r.task).Observe(time.Since(r.start).Seconds())
	return err
}
