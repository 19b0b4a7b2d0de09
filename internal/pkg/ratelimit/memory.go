package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxKeys bounds the limiter map; it is reset when exceeded.
const maxKeys = 10000

// MemoryLimiter keeps one x/time/rate limiter per key in process memory.
// Used when Redis is disabled.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter creates a limiter with rps tokens per second and the given burst.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow consumes one token for key if available.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if m.rate <= 0 || m.burst <= 0 {
		return true, 0, nil
	}
	lim := m.limiter(key)
	now := m.now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (m *MemoryLimiter) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	lim, ok := m.limiters[key]
	if !ok {
		if len(m.limiters) >= maxKeys {
			m.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = lim
	}
	return lim
}
