// Package jobmetrics instruments the console's background jobs.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded on govconsole_jobs_total.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusRejected = "rejected"
)

// Metrics holds the job collectors.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	refreshed *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer, or once on the
// default registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and returns err unchanged. A payload rejected with
// asynq.SkipRetry counts as rejected, not failed, because retrying cannot fix
// it.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := StatusSuccess
	switch {
	case errors.Is(err, asynq.SkipRetry):
		status = StatusRejected
	case err != nil:
		status = StatusFailure
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Exhausted counts a task of job that failed its last allowed attempt.
func (m *Metrics) Exhausted(job string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(job).Inc()
}

// AddRefreshed counts the lookup options reloaded by a warmup run.
func (m *Metrics) AddRefreshed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.refreshed.WithLabelValues(job).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govconsole_jobs_total",
			Help: "Job runs by job and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govconsole_jobs_failures_total",
			Help: "Job attempts that failed and may be retried.",
		}, []string{"job"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govconsole_jobs_exhausted_total",
			Help: "Tasks dropped after their last retry.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "govconsole_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		refreshed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govconsole_lookup_options_refreshed_total",
			Help: "Lookup options reloaded by background jobs.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.exhausted, m.duration, m.refreshed)
	return m
}
