// SPDX-License-Identifier: AGPL-3.0-or-later

// Package safety owns the hard, non-bypassable limits on automated
// execution: rate limits per operation category, the circuit breaker
// budget, the session sudo counter, and input validation ceilings. The
// state is explicitly constructed and injected so tests run against
// isolated instances.
package safety

import (
	"fmt"
	"time"
)

// RateLimitError reports a denied request. Callers must back off by
// RetryAfter before retrying; a denial is terminal for that attempt.
type RateLimitError struct {
	Category   string
	RetryAfter time.Duration
	Max        int
	Window     time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: max %d requests per %s", e.Category, e.Max, e.Window)
}

// BreakerError reports a tripped circuit breaker with a distinguishable
// reason code and the counters at trip time.
type BreakerError struct {
	Reason  string
	Current int
	Limit   int
}

func (e *BreakerError) Error() string {
	return fmt.Sprintf("circuit breaker tripped: %s (%d/%d)", e.Reason, e.Current, e.Limit)
}

// ValidationError reports malformed or oversized input, rejected before
// classification.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}
