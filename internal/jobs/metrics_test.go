package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("lookups:warmup").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("lookups:warmup").End(boom), boom)
	bad := fmt.Errorf("payload: %w", asynq.SkipRetry)
	assert.ErrorIs(t, m.Track("lookups:warmup").End(bad), asynq.SkipRetry)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("lookups:warmup", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("lookups:warmup", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("lookups:warmup", StatusRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("lookups:warmup")))
}

func TestExhausted(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Exhausted("lookups:warmup")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exhausted.WithLabelValues("lookups:warmup")))

	var nilMetrics *Metrics
	nilMetrics.Exhausted("x")
}

func TestAddRefreshed(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddRefreshed("lookups:warmup", 7)
	m.AddRefreshed("lookups:warmup", 0)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.refreshed.WithLabelValues("lookups:warmup")))

	var nilMetrics *Metrics
	nilMetrics.AddRefreshed("x", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
