// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import "time"

// Execution states. Running is the only non-terminal state; once terminal
// the state never changes.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
	ExecutionAborted   = "aborted"
)

// Circuit breaker reason codes surfaced when a hard limit halts an execution.
const (
	ReasonOperationCap   = "operation_cap_exceeded"
	ReasonTimeLimit      = "time_limit_exceeded"
	ReasonPrivilegeLimit = "privilege_limit_exceeded"
	ReasonCheckpoint     = "checkpoint_required"
)

// StepResult records the outcome of one dispatched step.
type StepResult struct {
	StepID        string        `json:"step_id"`
	Success       bool          `json:"success"`
	ExitCode      int           `json:"exit_code"`
	OutputPreview string        `json:"output_preview,omitempty"`
	Duration      time.Duration `json:"duration_ms"`
}

// BudgetSnapshot reports consumption against the hard execution limits.
type BudgetSnapshot struct {
	OperationsExecuted int `json:"operations_executed"`
	MaxOperations      int `json:"max_operations"`
	SudoEscalations    int `json:"sudo_escalations"`
	MaxSudoEscalations int `json:"max_sudo_escalations"`
	Recoveries         int `json:"recoveries"`
	CheckpointAfter    int `json:"checkpoint_after"`
	ElapsedSeconds     int `json:"elapsed_seconds"`
	WallClockSeconds   int `json:"wall_clock_seconds"`
}

// Execution is the live, stateful run of an approved plan. Owned exclusively
// by the engine goroutine that drives it; everyone else sees snapshots.
type Execution struct {
	ID             string         `json:"execution_id"`
	PlanID         string         `json:"plan_id"`
	State          string         `json:"state"`
	CurrentStep    int            `json:"current_step"`
	TotalSteps     int            `json:"total_steps"`
	CompletedSteps []StepResult   `json:"completed_steps"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	Budget         BudgetSnapshot `json:"budget"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// IsTerminalExecutionState reports whether the state permits no further
// transitions.
func IsTerminalExecutionState(state string) bool {
	switch state {
	case ExecutionCompleted, ExecutionFailed, ExecutionAborted:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of the execution snapshot.
func (e Execution) Clone() Execution {
	out := e
	out.CompletedSteps = append([]StepResult(nil), e.CompletedSteps...)
	if e.FinishedAt != nil {
		finished := *e.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
