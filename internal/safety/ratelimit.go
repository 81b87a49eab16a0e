// SPDX-License-Identifier: AGPL-3.0-or-later
package safety

import (
	"sync"
	"time"

	"github.com/wardd-org/wardd/internal/types"
)

// RateLimiter bounds privileged operations per category with a sliding
// window over request timestamps. Counters are in-memory and reset on
// process restart; they bound behavior within a running session.
type RateLimiter struct {
	mu       sync.Mutex
	limits   map[string]types.RateLimitConfig
	requests map[string][]time.Time
	nowFn    func() time.Time
}

// NewRateLimiter returns a limiter with the default category table.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits: map[string]types.RateLimitConfig{
			types.CategoryAuth:      {Category: types.CategoryAuth, MaxRequests: 5, WindowSeconds: 60},
			types.CategorySudo:      {Category: types.CategorySudo, MaxRequests: 10, WindowSeconds: 60},
			types.CategoryService:   {Category: types.CategoryService, MaxRequests: 20, WindowSeconds: 60},
			types.CategoryContainer: {Category: types.CategoryContainer, MaxRequests: 30, WindowSeconds: 60},
			types.CategoryPackage:   {Category: types.CategoryPackage, MaxRequests: 5, WindowSeconds: 300},
			types.CategoryApproval:  {Category: types.CategoryApproval, MaxRequests: 20, WindowSeconds: 60},
		},
		requests: make(map[string][]time.Time),
		nowFn:    time.Now,
	}
}

// Configure replaces the limit for a category.
func (l *RateLimiter) Configure(category string, maxRequests, windowSeconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[category] = types.RateLimitConfig{
		Category:      category,
		MaxRequests:   maxRequests,
		WindowSeconds: windowSeconds,
	}
}

// Allow records one request against the category window. It returns a
// *RateLimitError when the request would exceed the quota; the denied
// request is not recorded. Unknown categories are unlimited.
func (l *RateLimiter) Allow(category string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, ok := l.limits[category]
	if !ok {
		return nil
	}
	now := l.nowFn()
	window := time.Duration(cfg.WindowSeconds) * time.Second
	kept := pruneWindow(l.requests[category], now.Add(-window))
	l.requests[category] = kept

	if len(kept) >= cfg.MaxRequests {
		oldest := kept[0]
		retry := oldest.Add(window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return &RateLimitError{
			Category:   category,
			RetryAfter: retry,
			Max:        cfg.MaxRequests,
			Window:     window,
		}
	}

	l.requests[category] = append(kept, now)
	return nil
}

// Remaining reports how many requests are left in the current window and
// how long until the window fully resets.
func (l *RateLimiter) Remaining(category string) (int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, ok := l.limits[category]
	if !ok {
		return 0, 0
	}
	now := l.nowFn()
	window := time.Duration(cfg.WindowSeconds) * time.Second
	kept := pruneWindow(l.requests[category], now.Add(-window))
	l.requests[category] = kept

	remaining := cfg.MaxRequests - len(kept)
	if remaining < 0 {
		remaining = 0
	}
	reset := window
	if len(kept) > 0 {
		reset = kept[0].Add(window).Sub(now)
		if reset < 0 {
			reset = 0
		}
	}
	return remaining, reset
}

// Limits returns the configured table sorted by category for stable output.
func (l *RateLimiter) Limits() []types.RateLimitConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.RateLimitConfig, 0, len(l.limits))
	for _, category := range []string{
		types.CategoryAuth,
		types.CategorySudo,
		types.CategoryService,
		types.CategoryContainer,
		types.CategoryPackage,
		types.CategoryApproval,
	} {
		if cfg, ok := l.limits[category]; ok {
			out = append(out, cfg)
		}
	}
	for category, cfg := range l.limits {
		if !isDefaultCategory(category) {
			out = append(out, cfg)
		}
	}
	return out
}

func isDefaultCategory(category string) bool {
	switch category {
	case types.CategoryAuth, types.CategorySudo, types.CategoryService,
		types.CategoryContainer, types.CategoryPackage, types.CategoryApproval:
		return true
	default:
		return false
	}
}

// pruneWindow drops timestamps at or before the cutoff. Entries are stored
// in append order, so the slice stays sorted.
func pruneWindow(entries []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(entries) && !entries[idx].After(cutoff) {
		idx++
	}
	return entries[idx:]
}
