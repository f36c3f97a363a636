package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/babysteps/progression/internal/domain"
)

// RateLimiter implements a sliding window rate limiter keyed by user and route.
type RateLimiter struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter creates a rate limiter with the given limit per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Check returns a GuardResult indicating whether the key is within rate limits.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	rl.sweep(now, cutoff)

	valid := prune(rl.windows[key], cutoff)
	if len(valid) >= rl.limit {
		rl.windows[key] = valid
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("rate limit exceeded: %d/%s", rl.limit, rl.window),
			Guard:   "rate_limiter",
		}
	}

	rl.windows[key] = append(valid, now)
	return domain.GuardResult{Allowed: true}
}

// sweep drops idle keys once per window so the map does not grow with every
// user ever seen.
func (rl *RateLimiter) sweep(now, cutoff time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for k, entries := range rl.windows {
		if valid := prune(entries, cutoff); len(valid) == 0 {
			delete(rl.windows, k)
		} else {
			rl.windows[k] = valid
		}
	}
}

func prune(entries []time.Time, cutoff time.Time) []time.Time {
	valid := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
