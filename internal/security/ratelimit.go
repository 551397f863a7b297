// Package security holds the guards applied to messages from outside users.
package security

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-source limit using a sliding window. A limit of
// zero or less allows everything.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewRateLimiter allows limit requests per interval for each source.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records a request from source and reports whether it is within the
// limit. Rejected requests do not extend the window.
func (rl *RateLimiter) Allow(source string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	ts := prune(rl.windows[source], now.Add(-rl.interval))
	if len(ts) >= rl.limit {
		rl.windows[source] = ts
		return false
	}
	rl.windows[source] = append(ts, now)
	return true
}

// Remaining returns how many requests source has left in the current window.
func (rl *RateLimiter) Remaining(source string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	ts, ok := rl.windows[source]
	if !ok {
		return rl.limit
	}
	ts = prune(ts, rl.now().Add(-rl.interval))
	rl.windows[source] = ts
	return max(rl.limit-len(ts), 0)
}

// Reset forgets source.
func (rl *RateLimiter) Reset(source string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, source)
}

// Cleanup drops sources with no request inside the window and returns how
// many were removed.
func (rl *RateLimiter) Cleanup() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.interval)
	removed := 0
	for src, ts := range rl.windows {
		ts = prune(ts, cutoff)
		if len(ts) == 0 {
			delete(rl.windows, src)
			removed++
			continue
		}
		rl.windows[src] = ts
	}
	return removed
}

// Interval returns the window length.
func (rl *RateLimiter) Interval() time.Duration { return rl.interval }

// prune filters ts in place; callers must store the result.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	valid := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
