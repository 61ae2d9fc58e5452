package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalRateLimiter_DropsExpiredWindows(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newLocalRateLimiter()
	l.now = func() time.Time { return clock }

	for i := 0; i < localSweepSize; i++ {
		ok, _ := l.allow(fmt.Sprintf("patient-%d", i), 1, time.Minute)
		assert.True(t, ok)
	}
	assert.Len(t, l.states, localSweepSize)

	clock = clock.Add(2 * time.Minute)
	ok, _ := l.allow("patient-new", 1, time.Minute)
	assert.True(t, ok)
	assert.Len(t, l.states, 1)
}

func TestLocalRateLimiter_KeepsLiveWindows(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newLocalRateLimiter()
	l.now = func() time.Time { return clock }

	for i := 0; i < localSweepSize; i++ {
		l.allow(fmt.Sprintf("patient-%d", i), 1, time.Minute)
	}
	clock = clock.Add(30 * time.Second)
	l.allow("patient-new", 1, time.Minute)
	assert.Len(t, l.states, localSweepSize+1)

	ok, retryAfter := l.allow("patient-0", 1, time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter)
}
