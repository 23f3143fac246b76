package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/logixfirst/timetable-engine/pkg/config"
)

// NewRedis returns a configured Redis client. The engine uses it as the
// cache store for progress (progress:job:{id}), cancellation flags
// (cancel:job:{id}), the pub/sub progress channel, and the bounded result
// summary (result:job:{id}).
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
