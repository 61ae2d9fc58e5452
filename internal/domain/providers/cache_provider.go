package providers

import (
	"context"
	"time"
)

// CacheProvider holds short-lived counters shared by every API instance
type CacheProvider interface {
	// Increment atomically bumps a counter, starting its expiry window on first use
	Increment(ctx context.Context, key string, windowSeconds int) (int64, error)

	// TTL reports how long the key has left before it expires
	TTL(ctx context.Context, key string) (time.Duration, error)
}
