package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, limiter.Allow("10.0.0.1"), "burst exhausted")
}

func TestAllow_ReplenishesOverTime(t *testing.T) {
	// 600/min is 10 tokens per second.
	limiter := New(Config{RequestsPerMinute: 600, BurstSize: 1, CleanupInterval: time.Minute})
	defer limiter.Stop()

	assert.True(t, limiter.Allow("client"))
	assert.False(t, limiter.Allow("client"))

	time.Sleep(110 * time.Millisecond)
	assert.True(t, limiter.Allow("client"))
}

func TestAllow_ClientsAreIndependent(t *testing.T) {
	limiter := New(Config{RequestsPerMinute: 60, BurstSize: 2, CleanupInterval: time.Minute})
	defer limiter.Stop()

	limiter.Allow("clinic-a")
	limiter.Allow("clinic-a")
	assert.False(t, limiter.Allow("clinic-a"))
	assert.True(t, limiter.Allow("clinic-b"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120, cfg.RequestsPerMinute)
	assert.Equal(t, 20, cfg.BurstSize)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
}
