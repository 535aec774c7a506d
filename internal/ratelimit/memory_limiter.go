package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/clock"
)

// MemoryLimiter is an in-memory sliding-window Limiter. It backs the
// single-instance deployment and stands in when Redis is unavailable.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	log     *slog.Logger
	clock   clock.Clock
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an in-memory limiter implementation.
func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	return NewMemoryLimiterWithClock(log, clock.Real{})
}

// NewMemoryLimiterWithClock returns an in-memory limiter driven by clk.
func NewMemoryLimiterWithClock(log *slog.Logger, clk clock.Clock) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &MemoryLimiter{
		buckets: make(map[string][]time.Time),
		log:     log,
		clock:   clk,
	}
}

// Check enforces a sliding-window limit for key.
func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	admitted := dropBefore(m.buckets[key], now.Add(-window))
	allowed := len(admitted) < limit
	if allowed {
		admitted = append(admitted, now)
	}
	if len(admitted) == 0 {
		delete(m.buckets, key)
	} else {
		m.buckets[key] = admitted
	}

	result := &Result{
		Allowed:   allowed,
		Remaining: max(limit-len(admitted), 0),
		ResetAt:   now.Add(window),
	}
	if len(admitted) > 0 {
		result.ResetAt = admitted[0].Add(window)
	}

	if !allowed {
		return result, ErrLimitExceeded
	}
	return result, nil
}

// Cleanup forgets keys with no request in the last maxAge and returns how
// many were removed.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := m.clock.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, reqs := range m.buckets {
		if len(reqs) == 0 || reqs[len(reqs)-1].Before(cutoff) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// dropBefore removes leading timestamps older than start; reqs is sorted.
func dropBefore(reqs []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(reqs) && reqs[i].Before(start) {
		i++
	}
	return reqs[i:]
}
