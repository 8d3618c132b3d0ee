package auth

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a fixed request budget per key over a sliding window.
// It keeps an in-memory hit log per key; keys that go idle for a full
// window are swept so the map does not grow with every address ever seen.
type Limiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	hits      map[string][]time.Time
	nextSweep time.Time
}

func newLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:     limit,
		window:    window,
		hits:      make(map[string][]time.Time),
		nextSweep: time.Now().Add(window),
	}
}

// Allow records a hit for key unless the key already spent its budget
// within the trailing window.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	if now.After(l.nextSweep) {
		l.sweep(cutoff)
		l.nextSweep = now.Add(l.window)
	}

	// hits are appended in time order, so the live ones are a suffix
	hits := l.hits[key]
	stale := 0
	for stale < len(hits) && !hits[stale].After(cutoff) {
		stale++
	}
	hits = hits[stale:]

	if len(hits) >= l.limit {
		l.hits[key] = hits
		return false, nil
	}
	l.hits[key] = append(hits, now)
	return true, nil
}

// Reset forgets all hits for a key
func (l *Limiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
	return nil
}

// sweep drops keys whose newest hit predates the cutoff. Caller holds mu.
func (l *Limiter) sweep(cutoff time.Time) {
	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}

// IPRateLimiter buckets requests by client address
type IPRateLimiter struct {
	inner *Limiter
}

// NewIPRateLimiter creates a per-IP limiter with a one minute window
func NewIPRateLimiter(requestsPerMinute int) *IPRateLimiter {
	return &IPRateLimiter{inner: newLimiter(requestsPerMinute, time.Minute)}
}

// Allow checks if a request from an IP is allowed
func (l *IPRateLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	return l.inner.Allow(ctx, ip)
}

// UserRateLimiter buckets requests by authenticated user
type UserRateLimiter struct {
	inner *Limiter
}

// NewUserRateLimiter creates a per-user limiter with a one minute window
func NewUserRateLimiter(requestsPerMinute int) *UserRateLimiter {
	return &UserRateLimiter{inner: newLimiter(requestsPerMinute, time.Minute)}
}

// Allow checks if a request from a user is allowed
func (l *UserRateLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	return l.inner.Allow(ctx, userID)
}
