package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per client key
type Limiter struct {
	visitors map[string]*visitor
	mutex    sync.Mutex
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// New creates a limiter allowing rps requests per second per key with the given burst
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow checks if key may make a request now
func (l *Limiter) Allow(key string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = l.now()

	return v.limiter.AllowN(v.lastSeen, 1)
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.visitors)
}

// Cleanup forgets keys idle for longer than maxIdle
func (l *Limiter) Cleanup(maxIdle time.Duration) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := l.now().Add(-maxIdle)
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
		}
	}
}

// Run calls Cleanup every interval until ctx is done
func (l *Limiter) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup(maxIdle)
		}
	}
}
