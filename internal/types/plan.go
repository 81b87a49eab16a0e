// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import "time"

// Plan complexity labels derived from the risk profile of the steps.
const (
	ComplexitySimple     = "simple"
	ComplexityComplex    = "complex"
	ComplexityDiagnostic = "diagnostic"
	ComplexityRisky      = "risky"
)

// Failure policies for a plan. Stop is the default: the first failed step
// ends the execution. Continue counts each failure as an automated recovery
// against the checkpoint ceiling.
const (
	OnFailureStop     = "stop"
	OnFailureContinue = "continue"
)

// Step is one candidate command inside a plan. Immutable once the plan is
// created; risk fields are computed at creation time and never re-derived.
type Step struct {
	ID              string    `json:"id"`
	Number          int       `json:"number"`
	Title           string    `json:"title"`
	Command         string    `json:"command"`
	Explanation     string    `json:"explanation,omitempty"`
	RiskLevel       RiskLevel `json:"risk_level"`
	IsDestructive   bool      `json:"is_destructive"`
	UndoCommand     string    `json:"undo_command,omitempty"`
	MatchedPatterns []string  `json:"matched_patterns,omitempty"`
	Category        string    `json:"category,omitempty"`
	ApprovalID      string    `json:"approval_id,omitempty"`
}

// Plan is an ordered, immutable list of candidate steps produced by an
// external planner.
type Plan struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Complexity     string    `json:"complexity"`
	Steps          []Step    `json:"steps"`
	OnFailure      string    `json:"on_failure"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone returns a deep copy safe to hand across goroutines.
func (p Plan) Clone() Plan {
	out := p
	out.Steps = make([]Step, len(p.Steps))
	for i, step := range p.Steps {
		out.Steps[i] = step
		if len(step.MatchedPatterns) > 0 {
			out.Steps[i].MatchedPatterns = append([]string(nil), step.MatchedPatterns...)
		}
	}
	return out
}
