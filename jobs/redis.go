package jobs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// RedisConnOpt resolves a REDIS_ADDR value, either host:port or a
// redis:// / rediss:// URI, into asynq connection options.
func RedisConnOpt(addr string) (asynq.RedisConnOpt, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("jobs: redis address required")
	}
	if strings.Contains(addr, "://") {
		opt, err := asynq.ParseRedisURI(addr)
		if err != nil {
			return nil, fmt.Errorf("jobs: redis uri: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: addr}, nil
}
