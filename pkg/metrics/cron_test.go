package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histogramSamples(t *testing.T, h prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := h.(prometheus.Metric)
	require.True(t, ok)
	var out dto.Metric
	require.NoError(t, metric.Write(&out))
	return out.GetHistogram().GetSampleCount()
}

func TestCronJobMetricsObserveRun(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	job := "pending-payment-sweep"

	m.ObserveRun(job, 200*time.Millisecond, nil)
	m.ObserveRun(job, time.Second, errors.New("gateway down"))
	m.ObserveRun(job, time.Second, errors.New("gateway down"))
	m.CycleSkipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues(job, "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues(job)), 0.0)
	assert.EqualValues(t, 3, histogramSamples(t, m.duration.WithLabelValues(job)))
}

func TestCronFailureLeavesLastSuccessUnset(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.ObserveRun("", time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", "failure")))
	assert.Zero(t, testutil.CollectAndCount(m.lastSuccess))
}

func TestNilRegistererIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		cron := NewCronJobMetrics(nil)
		cron.ObserveRun("job", time.Second, nil)
		cron.CycleSkipped()

		var nilCron *CronJobMetrics
		nilCron.ObserveRun("job", time.Second, errors.New("x"))

		payments := NewPaymentMetrics(nil)
		payments.RecordReconciliation(SourceCallback, "paid")
		payments.ObserveGatewayLatency(time.Second)
	})
}
