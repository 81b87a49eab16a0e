// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events defines the audit trail. Every security-relevant decision
// is recorded as an Event and fanned out to the configured sinks.
package events

import (
	"time"
)

// Audit event types. One constant per security-relevant decision.
const (
	TypeCommandExecuted   = "command_executed"
	TypeCommandBlocked    = "command_blocked"
	TypeApprovalRequested = "approval_requested"
	TypeApprovalGranted   = "approval_granted"
	TypeApprovalDenied    = "approval_denied"
	TypeApprovalEdited    = "approval_edited"
	TypeRateLimitExceeded = "rate_limit_exceeded"
	TypeInjectionDetected = "injection_detected"
	TypeValidationFailed  = "validation_failed"
	TypeSudoUsed          = "sudo_used"
	TypeBreakerTripped    = "breaker_tripped"
	TypeExecutionStarted  = "execution_started"
	TypeExecutionFinished = "execution_finished"
	TypeAuthFailed        = "auth_login_failed"
)

// Event is one audit record. Sequence and Timestamp are assigned by the
// sink that persists the event.
type Event struct {
	Sequence    int64                  `json:"sequence"`
	Timestamp   time.Time              `json:"timestamp"`
	Type        string                 `json:"type"`
	Command     string                 `json:"command,omitempty"`
	PlanID      string                 `json:"plan_id,omitempty"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	ApprovalID  string                 `json:"approval_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Sink consumes audit events. Implementations must be safe for concurrent
// use; Record must never block the caller on slow storage.
type Sink interface {
	Record(ev Event)
}

// CompositeSink fans recorded events out to multiple sinks.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink returns a sink forwarding to all non-nil sinks.
func NewCompositeSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	default:
		return &CompositeSink{sinks: filtered}
	}
}

func (c *CompositeSink) Record(ev Event) {
	for _, s := range c.sinks {
		s.Record(ev)
	}
}

// Record sends an event to a possibly-nil sink.
func Record(sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.Command != "" {
		ev.Command = RedactCommand(ev.Command)
	}
	sink.Record(ev)
}
