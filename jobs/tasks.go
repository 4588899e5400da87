package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueLookups carries lookup warmups; it outranks QueueDefault.
	QueueLookups = "lookups"
	// QueueDefault takes every other background task.
	QueueDefault = "default"
	// TaskLookupWarmup reloads the filter option lookups into the cache.
	TaskLookupWarmup = "lookups:warmup"
)

// Queues lists the console queues with their processing weight.
var Queues = map[string]int{
	QueueLookups: 3,
	QueueDefault: 1,
}

// LookupWarmupPayload lists the lookup sources to reload. An empty list
// reloads every source the screens reference.
type LookupWarmupPayload struct {
	Sources []string `json:"sources"`
}

// NewLookupWarmupTask constructs a warmup task bound to the lookups queue.
func NewLookupWarmupTask(sources []string) (*asynq.Task, error) {
	data, err := json.Marshal(LookupWarmupPayload{Sources: sources})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLookupWarmup, data, asynq.Queue(QueueLookups), asynq.MaxRetry(3)), nil
}
