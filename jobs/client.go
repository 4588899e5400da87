package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// ErrWarmupQueued reports a warmup request collapsed into one still queued.
var ErrWarmupQueued = errors.New("jobs: lookup warmup already queued")

// warmupWindow is how long identical warmup requests collapse into one task.
const warmupWindow = time.Minute

// Client submits console tasks.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a client on redisOpts.
func NewClient(redisOpts asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueLookupWarmup enqueues a warmup for sources, or for every source
// when none are given.
func (c *Client) EnqueueLookupWarmup(ctx context.Context, sources []string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs: client not configured")
	}
	task, err := NewLookupWarmupTask(sources)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.Unique(warmupWindow))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("%w: %v", ErrWarmupQueued, err)
	}
	return info, err
}

// Close releases client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
