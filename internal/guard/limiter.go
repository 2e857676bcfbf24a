package guard

import (
	"sync"
	"time"
)

// Clock supplies the current time; injected for deterministic tests.
type Clock func() time.Time

// FixedWindowLimiter counts requests per caller key within discrete,
// non-overlapping windows of fixed length. Windows reset lazily on the
// first request after expiry.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	now     Clock
	buckets map[string]*bucket
}

type bucket struct {
	start time.Time
	count int
}

// evictThreshold bounds bucket map growth; a sweep of expired windows runs
// whenever the map passes it.
const evictThreshold = 1024

// NewFixedWindowLimiter creates a limiter allowing max requests per key per
// window. A nil clock uses time.Now.
func NewFixedWindowLimiter(window time.Duration, max int, now Clock) *FixedWindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &FixedWindowLimiter{
		window:  window,
		max:     max,
		now:     now,
		buckets: make(map[string]*bucket),
	}
}

// Allow records one request for key and reports whether it fits in the
// current window. The increment and the comparison happen under one lock,
// so concurrent bursts from the same caller cannot exceed the cap.
func (l *FixedWindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= l.window {
		l.buckets[key] = &bucket{start: now, count: 1}
		if len(l.buckets) > evictThreshold {
			l.evict(now)
		}
		return l.max >= 1
	}

	b.count++
	return b.count <= l.max
}

// evict drops expired windows. Caller holds the lock.
func (l *FixedWindowLimiter) evict(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.start) >= l.window {
			delete(l.buckets, key)
		}
	}
}
