package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/govconsole/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LookupRefresher invalidates the lookup cache and reloads sources.
type LookupRefresher interface {
	Refresh(ctx context.Context, sources []string) (int, error)
}

// LookupWarmupJob keeps filter options warm so new workspaces do not wait on
// the governance API.
type LookupWarmupJob struct {
	Lookups LookupRefresher
	// Sources is used when a task names no sources.
	Sources []string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewLookupWarmupJob wires dependencies for the warmup handler.
func NewLookupWarmupJob(lookups LookupRefresher, sources []string, logger *slog.Logger, metrics *jobmetrics.Metrics) *LookupWarmupJob {
	return &LookupWarmupJob{Lookups: lookups, Sources: sources, Logger: logger, Metrics: metrics, Timeout: time.Minute}
}

// Handle processes lookup warmup tasks.
func (j *LookupWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Lookups == nil {
		return errors.New("lookup warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskLookupWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload LookupWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("lookup warmup: payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	sources := payload.Sources
	if len(sources) == 0 {
		sources = j.Sources
	}

	logger := j.logger()
	if len(sources) == 0 {
		logger.Info("no lookup sources to warm")
		return nil
	}

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	count, err := j.Lookups.Refresh(runCtx, sources)
	if err != nil {
		logger.Error("refresh lookups", slog.Any("sources", sources), slog.Any("error", err))
		return err
	}
	j.metrics().AddRefreshed(TaskLookupWarmup, count)
	logger.Info("completed lookup warmup", slog.Int("sources", len(sources)), slog.Int("options", count), slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *LookupWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLookupWarmup))
	}
	return slog.Default().With(slog.String("job", TaskLookupWarmup))
}

func (j *LookupWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
