// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import "time"

// Approval lifecycle states. Approved and rejected are terminal; an approval
// never mutates after a decision is recorded.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Approval is a single human decision point gating one command or one plan
// step.
type Approval struct {
	ID             string     `json:"id"`
	Command        string     `json:"command"`
	Explanation    string     `json:"explanation,omitempty"`
	RiskLevel      RiskLevel  `json:"risk_level"`
	IsDestructive  bool       `json:"is_destructive"`
	UndoCommand    string     `json:"undo_command,omitempty"`
	AffectedPaths  []string   `json:"affected_paths,omitempty"`
	Status         string     `json:"status"`
	PlanID         string     `json:"plan_id,omitempty"`
	StepID         string     `json:"step_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	EditedCommand  string     `json:"edited_command,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
}

// EffectiveCommand returns the command that execution must use: the edited
// command when one was supplied at approval time, the original otherwise.
func (a Approval) EffectiveCommand() string {
	if a.EditedCommand != "" {
		return a.EditedCommand
	}
	return a.Command
}
