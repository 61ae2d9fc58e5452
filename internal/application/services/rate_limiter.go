package services

import (
	"context"
	"sync"
	"time"

	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
)

// RateLimiter caps how often a key may perform an action within a window.
// Counters live in the cache when one is configured; a cache failure falls
// back to an in-process window so the limit still holds per instance.
type RateLimiter struct {
	prefix string
	cache  providers.CacheProvider
	limit  int
	window time.Duration
	local  *localRateLimiter
}

// NewRateLimiter creates a limiter. A non-positive limit disables it.
func NewRateLimiter(prefix string, cache providers.CacheProvider, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimiter{
		prefix: prefix,
		cache:  cache,
		limit:  limit,
		window: window,
		local:  newLocalRateLimiter(),
	}
}

// Allow consumes one unit for key and reports whether it was within budget
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l == nil || l.limit <= 0 {
		return true, 0
	}
	key = l.prefix + key

	if l.cache != nil {
		count, err := l.cache.Increment(ctx, key, int(l.window.Seconds()))
		if err == nil {
			if count <= int64(l.limit) {
				return true, l.window
			}
			if ttl, ttlErr := l.cache.TTL(ctx, key); ttlErr == nil && ttl > 0 {
				return false, ttl
			}
			return false, l.window
		}
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("rate limit cache unavailable, using local counter")
	}

	return l.local.allow(key, l.limit, l.window)
}

// localSweepSize is how many keys the local window holds before expired
// entries are dropped
const localSweepSize = 1024

type localRateLimiter struct {
	mu     sync.Mutex
	states map[string]*localRateState
	now    func() time.Time
}

type localRateState struct {
	count   int
	resetAt time.Time
}

func newLocalRateLimiter() *localRateLimiter {
	return &localRateLimiter{
		states: make(map[string]*localRateState),
		now:    time.Now,
	}
}

func (l *localRateLimiter) allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.states[key]
	if !ok || now.After(state.resetAt) {
		if !ok && len(l.states) >= localSweepSize {
			l.sweep(now)
		}
		state = &localRateState{count: 0, resetAt: now.Add(window)}
		l.states[key] = state
	}

	if state.count >= limit {
		retryAfter := state.resetAt.Sub(now)
		if retryAfter < 0 {
			retryAfter = window
		}
		return false, retryAfter
	}

	state.count++
	return true, window
}

func (l *localRateLimiter) sweep(now time.Time) {
	for key, state := range l.states {
		if now.After(state.resetAt) {
			delete(l.states, key)
		}
	}
}
