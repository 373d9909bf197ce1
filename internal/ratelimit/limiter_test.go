package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowBurstThenBlock(t *testing.T) {
	limiter := New(1, 3)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("1.2.3.4"), "request %d within burst", i)
	}
	assert.False(t, limiter.Allow("1.2.3.4"))

	// other clients have their own bucket
	assert.True(t, limiter.Allow("5.6.7.8"))

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("1.2.3.4"))
}

func TestLimiter_Cleanup(t *testing.T) {
	limiter := New(1, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("old")
	now = now.Add(10 * time.Minute)
	limiter.Allow("fresh")

	limiter.Cleanup(5 * time.Minute)

	assert.Equal(t, 1, limiter.Len())
	limiter.mutex.Lock()
	_, ok := limiter.visitors["fresh"]
	limiter.mutex.Unlock()
	assert.True(t, ok)
}

func TestLimiter_RunStopsOnCancel(t *testing.T) {
	limiter := New(1, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		limiter.Run(ctx, time.Millisecond, time.Minute)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
