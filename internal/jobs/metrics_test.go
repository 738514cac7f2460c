package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsStatus(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	for i := 0; i < 4; i++ {
		require.NoError(t, metrics.Start("notify:daily").Finish(nil))
	}
	boom := errors.New("redis down")
	require.ErrorIs(t, metrics.Start("notify:daily").Finish(boom), boom)

	require.Equal(t, 4.0, testutil.ToFloat64(metrics.runs.WithLabelValues("notify:daily", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("notify:daily", "failure")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
	require.Positive(t, testutil.ToFloat64(metrics.lastSuccess.WithLabelValues("notify:daily")))
}

func TestFailedRunLeavesLastSuccessUnset(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	_ = metrics.Start("notify:run").Finish(errors.New("boom"))
	require.Equal(t, 0, testutil.CollectAndCount(metrics.lastSuccess))
}

func TestAddIgnoresEmptyBatches(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	run := metrics.Start("notify:deliver")
	run.Add("sent", 3)
	run.Add("failed", 0)

	require.Equal(t, 3.0, testutil.ToFloat64(metrics.items.WithLabelValues("notify:deliver", "sent")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.items))
}

func TestNilMetricsPassErrorsThrough(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	run := metrics.Start("notify:run")
	run.Add("sent", 1)
	require.ErrorIs(t, run.Finish(boom), boom)
}
