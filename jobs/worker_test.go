package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/govconsole/internal/jobs"
)

func TestRedisConnOpt(t *testing.T) {
	opt, err := RedisConnOpt("127.0.0.1:6380")
	require.NoError(t, err)
	assert.Equal(t, asynq.RedisClientOpt{Addr: "127.0.0.1:6380"}, opt)

	opt, err = RedisConnOpt("redis://:secret@cache:6379/2")
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "cache:6379", client.Addr)
	assert.Equal(t, "secret", client.Password)
	assert.Equal(t, 2, client.DB)

	_, err = RedisConnOpt(" ")
	assert.Error(t, err)
	_, err = RedisConnOpt("ftp://cache:6379")
	assert.Error(t, err)
}

func TestNewWorkerValidatesTables(t *testing.T) {
	opt := asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}

	_, err := NewWorker(WorkerConfig{})
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{RedisOpts: opt, Handlers: []TaskHandler{{Type: TaskLookupWarmup}}})
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{RedisOpts: opt, Cron: []CronRegistration{{Spec: "@every 5m"}}})
	assert.Error(t, err)
}

func TestFailureLoggerLevels(t *testing.T) {
	buf := new(bytes.Buffer)
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	handle := failureLogger(slog.New(slog.NewTextHandler(buf, nil)), metrics)
	task := asynq.NewTask(TaskLookupWarmup, nil)

	handle(context.Background(), task, asynq.SkipRetry)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "type=lookups:warmup")

	buf.Reset()
	handle(context.Background(), task, errors.New("timeout"))
	// Without retry metadata the attempt counts as the last one.
	assert.Contains(t, buf.String(), "task failed permanently")

	expected := `
# HELP govconsole_jobs_exhausted_total Tasks dropped after their last retry.
# TYPE govconsole_jobs_exhausted_total counter
govconsole_jobs_exhausted_total{job="lookups:warmup"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "govconsole_jobs_exhausted_total"))
}

func TestAsynqLoggerRoutesToSlog(t *testing.T) {
	buf := new(bytes.Buffer)
	l := asynqLogger{logger: slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	l.Warn("lease ", "expired")
	l.Fatal("gone")
	assert.Contains(t, buf.String(), `level=WARN msg="lease expired"`)
	assert.Contains(t, buf.String(), "level=ERROR msg=gone")
}

func TestClientNotConfigured(t *testing.T) {
	var c *Client
	_, err := c.EnqueueLookupWarmup(context.Background(), nil)
	assert.Error(t, err)
	assert.NoError(t, c.Close())
}
