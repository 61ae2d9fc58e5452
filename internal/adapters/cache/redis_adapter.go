package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/bpcare/internal/domain/providers"
	redisclient "github.com/zatekoja/bpcare/internal/infrastructure/clients/redis"
)

// RedisAdapter keeps rate limit counters in Redis
type RedisAdapter struct {
	client *redisclient.Client
}

// NewRedisAdapter creates a new Redis counter adapter
func NewRedisAdapter(client *redisclient.Client) providers.CacheProvider {
	return &RedisAdapter{
		client: client,
	}
}

// Increment bumps a fixed-window counter. The window starts with the first
// increment, so the key expires windowSeconds after it was created. A counter
// found without an expiry gets one, so a lost EXPIRE cannot pin it forever.
func (a *RedisAdapter) Increment(ctx context.Context, key string, windowSeconds int) (int64, error) {
	rdb := a.client.Client()

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	count := incr.Val()
	if windowSeconds > 0 && ttl.Val() < 0 {
		if err := rdb.Expire(ctx, key, time.Duration(windowSeconds)*time.Second).Err(); err != nil {
			return 0, fmt.Errorf("failed to set counter window: %w", err)
		}
	}
	return count, nil
}

// TTL returns the remaining window of a counter, zero when the key is gone
func (a *RedisAdapter) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := a.client.Client().TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read counter ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
