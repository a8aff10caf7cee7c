/**
 * @description
 * This file implements the inbound rate limiter guarding the gateway's own
 * public endpoints, independent of the outbound ceiling. The default is a
 * per-instance in-memory sliding window keyed by client address; deployments
 * with Redis configured get the distributed fixed-window limiter instead
 * (redis_rate_limiter.go) so the bound holds across instances.
 */

package app

import (
	"context"
	"math"
	"sync"
	"time"
)

// RequestLimiter is the admission check applied by the API middleware. A
// rejected request carries a retry-after hint in seconds.
type RequestLimiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (allowed bool, retryAfterSeconds int, err error)
}

// MemoryRateLimiter is a per-process sliding-window counter. Each key holds
// the timestamps of its requests inside the current window; idle keys are
// swept periodically to bound memory.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

type windowEntry struct {
	hits     []time.Time
	lastSeen time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// Allow records a hit for scope:subject and reports whether it fits within
// limit requests per window. The retry-after hint is the time until the oldest
// in-window hit expires.
func (l *MemoryRateLimiter) Allow(_ context.Context, scope, subject string, limit int, window time.Duration) (bool, int, error) {
	if limit <= 0 || window <= 0 || subject == "" {
		return true, 0, nil
	}

	now := l.now()
	cutoff := now.Add(-window)
	key := scope + ":" + subject

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		entry = &windowEntry{}
		l.entries[key] = entry
	}
	entry.lastSeen = now

	// Slide the window: drop hits older than the cutoff.
	kept := entry.hits[:0]
	for _, hit := range entry.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	entry.hits = kept

	if len(entry.hits) >= limit {
		oldest := entry.hits[0]
		retryAfter := int(math.Ceil(oldest.Add(window).Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter, nil
	}

	entry.hits = append(entry.hits, now)
	return true, 0, nil
}

// Sweep removes keys idle longer than idleTTL.
func (l *MemoryRateLimiter) Sweep(idleTTL time.Duration) {
	cutoff := l.now().Add(-idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// StartJanitor sweeps idle keys on a fixed interval until the context is done.
func (l *MemoryRateLimiter) StartJanitor(ctx context.Context, every, idleTTL time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep(idleTTL)
			}
		}
	}()
}
