package cache

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bpcare/internal/application/services"
	redisclient "github.com/zatekoja/bpcare/internal/infrastructure/clients/redis"
)

// memoryRedis answers INCR, TTL and EXPIRE in memory through a client hook,
// so no server is dialed.
type memoryRedis struct {
	mu          sync.Mutex
	counts      map[string]int64
	expires     map[string]time.Duration
	failExpires int
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (m *memoryRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("memoryRedis does not dial")
	}
}

func (m *memoryRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return m.apply(cmd)
	}
}

func (m *memoryRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if err := m.apply(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func (m *memoryRedis) apply(cmd redis.Cmder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, _ := cmd.Args()[1].(string)
	switch cmd.Name() {
	case "incr":
		m.counts[key]++
		cmd.(*redis.IntCmd).SetVal(m.counts[key])
	case "ttl":
		switch ttl, ok := m.expires[key]; {
		case ok:
			cmd.(*redis.DurationCmd).SetVal(ttl)
		case m.counts[key] > 0:
			cmd.(*redis.DurationCmd).SetVal(-1)
		default:
			cmd.(*redis.DurationCmd).SetVal(-2)
		}
	case "expire":
		if m.failExpires > 0 {
			m.failExpires--
			err := errors.New("connection reset by peer")
			cmd.SetErr(err)
			return err
		}
		m.expires[key] = time.Duration(cmd.Args()[2].(int64)) * time.Second
		cmd.(*redis.BoolCmd).SetVal(true)
	default:
		err := errors.New("unexpected command " + cmd.Name())
		cmd.SetErr(err)
		return err
	}
	return nil
}

func newTestAdapter(t *testing.T) (*RedisAdapter, *memoryRedis) {
	t.Helper()
	mem := newMemoryRedis()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(mem)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisAdapter(redisclient.NewClientFromRedis(rdb)).(*RedisAdapter), mem
}

func TestRedisAdapter_Increment(t *testing.T) {
	t.Run("first increment opens the window", func(t *testing.T) {
		adapter, mem := newTestAdapter(t)

		count, err := adapter.Increment(context.Background(), "rl:patient-1", 3600)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.Equal(t, time.Hour, mem.expires["rl:patient-1"])

		count, err = adapter.Increment(context.Background(), "rl:patient-1", 3600)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("failed expire is repaired on the next increment", func(t *testing.T) {
		adapter, mem := newTestAdapter(t)
		mem.failExpires = 1

		_, err := adapter.Increment(context.Background(), "rl:patient-1", 60)
		require.Error(t, err)
		_, ok := mem.expires["rl:patient-1"]
		assert.False(t, ok)

		count, err := adapter.Increment(context.Background(), "rl:patient-1", 60)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		assert.Equal(t, time.Minute, mem.expires["rl:patient-1"])
	})

	t.Run("counter without expiry past the limit gets a window", func(t *testing.T) {
		adapter, mem := newTestAdapter(t)
		mem.counts["rl:patient-1"] = 10

		count, err := adapter.Increment(context.Background(), "rl:patient-1", 60)
		require.NoError(t, err)
		assert.Equal(t, int64(11), count)

		ttl, err := adapter.TTL(context.Background(), "rl:patient-1")
		require.NoError(t, err)
		assert.Equal(t, time.Minute, ttl)
	})
}

func TestRedisAdapter_TTL(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	ttl, err := adapter.TTL(context.Background(), "rl:missing")
	require.NoError(t, err)
	assert.Zero(t, ttl)
}

func TestRedisAdapter_RateLimiterRecoversOrphanedCounter(t *testing.T) {
	adapter, mem := newTestAdapter(t)
	limiter := services.NewRateLimiter("rl:", adapter, 2, time.Minute)
	mem.counts["rl:patient-1"] = 5

	ok, retryAfter := limiter.Allow(context.Background(), "patient-1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retryAfter)

	// window elapses
	mem.mu.Lock()
	delete(mem.counts, "rl:patient-1")
	delete(mem.expires, "rl:patient-1")
	mem.mu.Unlock()

	ok, _ = limiter.Allow(context.Background(), "patient-1")
	assert.True(t, ok)
}
