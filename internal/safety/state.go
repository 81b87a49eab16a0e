// SPDX-License-Identifier: AGPL-3.0-or-later
package safety

import (
	"sync"

	"github.com/wardd-org/wardd/internal/types"
)

// State aggregates the session-wide safety machinery: the rate limiter,
// the hard limits applied to new budgets, and the session sudo counter.
// One State is constructed at startup and injected everywhere; tests build
// their own.
type State struct {
	mu        sync.Mutex
	limits    Limits
	limiter   *RateLimiter
	sudoCount int
}

// NewState returns a State with the supplied limits and limiter. A nil
// limiter gets the default category table.
func NewState(limits Limits, limiter *RateLimiter) *State {
	if limiter == nil {
		limiter = NewRateLimiter()
	}
	return &State{limits: limits, limiter: limiter}
}

// Limiter exposes the rate limiter for callers that gate on categories.
func (s *State) Limiter() *RateLimiter { return s.limiter }

// Limits returns a copy of the current hard limits.
func (s *State) Limits() Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// NewBudget creates an execution budget from the current limits.
func (s *State) NewBudget() *Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewBudget(s.limits)
}

// RecordSudo counts one privilege escalation against the session ceiling.
// The check happens before the increment, so the counter never passes the
// limit. MaxSudo of zero denies every escalation.
func (s *State) RecordSudo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sudoCount+1 > s.limits.MaxSudo {
		return &BreakerError{
			Reason:  types.ReasonPrivilegeLimit,
			Current: s.sudoCount,
			Limit:   s.limits.MaxSudo,
		}
	}
	s.sudoCount++
	return nil
}

// SudoCount reports escalations used this session.
func (s *State) SudoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sudoCount
}

// ValidateCommand rejects empty and oversized commands before any
// classification runs.
func (s *State) ValidateCommand(command string) error {
	if command == "" {
		return &ValidationError{Field: "command", Msg: "must not be empty"}
	}
	s.mu.Lock()
	max := s.limits.MaxCommandLength
	s.mu.Unlock()
	if len(command) > max {
		return &ValidationError{Field: "command", Msg: "exceeds maximum length"}
	}
	return nil
}

// SetRateLimit clamps and applies a category quota, returning the
// effective values.
func (s *State) SetRateLimit(category string, maxRequests, windowSeconds int) types.RateLimitConfig {
	cfg := types.RateLimitConfig{
		Category:      category,
		MaxRequests:   clampInt(maxRequests, MinRateRequests, MaxRateRequests),
		WindowSeconds: clampInt(windowSeconds, MinRateWindowSecs, MaxRateWindowSecs),
	}
	s.limiter.Configure(cfg.Category, cfg.MaxRequests, cfg.WindowSeconds)
	return cfg
}

// SetSudoLimit clamps and applies the session sudo ceiling.
func (s *State) SetSudoLimit(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits.MaxSudo = clampInt(max, MinSudo, MaxSudoCeil)
	return s.limits.MaxSudo
}

// SetMaxIterations clamps and applies the per-execution operation cap.
// Running budgets keep the limits they started with.
func (s *State) SetMaxIterations(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits.MaxOperations = clampInt(max, MinOperations, MaxOperationsCeil)
	return s.limits.MaxOperations
}

// SetWallClockTimeout clamps and applies the per-execution wall-clock
// ceiling in seconds.
func (s *State) SetWallClockTimeout(seconds int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits.WallClockSeconds = clampInt(seconds, MinWallClock, MaxWallClockCeil)
	return s.limits.WallClockSeconds
}

// SetCommandLength clamps and applies the maximum accepted command length.
func (s *State) SetCommandLength(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits.MaxCommandLength = clampInt(max, MinCommandLength, MaxCommandLenCeil)
	return s.limits.MaxCommandLength
}

// Settings returns the full settings snapshot. Pattern counts come from
// the caller so this package stays independent of the rule tables.
func (s *State) Settings(dangerousPatterns, injectionPatterns int) types.SafetySettings {
	s.mu.Lock()
	limits := s.limits
	sudo := s.sudoCount
	s.mu.Unlock()
	return types.SafetySettings{
		RateLimits:            s.limiter.Limits(),
		MaxSudoEscalations:    limits.MaxSudo,
		CurrentSudoCount:      sudo,
		MaxCommandLength:      limits.MaxCommandLength,
		MaxIterations:         limits.MaxOperations,
		WallClockTimeoutSecs:  limits.WallClockSeconds,
		CheckpointAfter:       limits.CheckpointAfter,
		MaxServiceNameLength:  limits.MaxServiceName,
		MaxContainerIDLength:  limits.MaxContainerID,
		MaxPackageNameLength:  limits.MaxPackageName,
		DangerousPatternCount: dangerousPatterns,
		InjectionPatternCount: injectionPatterns,
	}
}
