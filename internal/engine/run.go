// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/risk"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/approvalstore"
	"github.com/wardd-org/wardd/internal/types"
)

// Failure reasons not tied to a breaker reason code.
const (
	failureStepFailed       = "step_failed"
	failureApprovalRejected = "approval_rejected"
	failureAborted          = "aborted"
)

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, execID string, plan types.Plan, budget *safety.Budget) {
	defer m.sem.Release(1)
	defer m.running.Delete(execID)
	defer cancel()

	log := m.log.With("execution_id", execID, "plan_id", plan.ID)

	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			m.finish(execID, budget, types.ExecutionAborted, failureAborted)
			return
		}

		// Budget checks happen before dispatch so the counters can never
		// pass their ceilings.
		if err := budget.BeginOperation(); err != nil {
			m.trip(execID, budget, log, step, err)
			return
		}
		if err := budget.CheckTime(); err != nil {
			m.trip(execID, budget, log, step, err)
			return
		}

		command := step.Command
		if step.ApprovalID != "" {
			decision, ok := m.awaitApproval(ctx, step.ApprovalID)
			if !ok {
				m.finish(execID, budget, types.ExecutionAborted, failureAborted)
				return
			}
			if !decision.Approved {
				log.Warn("step rejected", "step", step.Number, "approval_id", step.ApprovalID)
				m.reg.RecordDenial("approval_rejected")
				m.finish(execID, budget, types.ExecutionFailed, failureApprovalRejected)
				return
			}
			command = decision.EffectiveCommand
		}

		if step.Category != "" {
			if err := m.safety.Limiter().Allow(step.Category); err != nil {
				log.Warn("step rate limited", "step", step.Number, "category", step.Category, "error", err)
				m.reg.RecordDenial("rate_limit")
				events.Record(m.audit, events.Event{
					Type:        events.TypeRateLimitExceeded,
					Command:     command,
					PlanID:      plan.ID,
					ExecutionID: execID,
					Data:        map[string]interface{}{"category": step.Category},
				})
				m.finish(execID, budget, types.ExecutionFailed, err.Error())
				return
			}
		}

		if risk.IsSudo(command) {
			if err := m.safety.RecordSudo(); err != nil {
				m.trip(execID, budget, log, step, err)
				return
			}
			m.reg.RecordSudoEscalation()
			events.Record(m.audit, events.Event{
				Type:        events.TypeSudoUsed,
				Command:     command,
				PlanID:      plan.ID,
				ExecutionID: execID,
			})
		}

		stepCtx, stepCancel := context.WithDeadline(ctx, budget.Deadline())
		res := m.runFn(stepCtx, command, m.execCfg)
		stepCancel()

		m.reg.RecordStep(res.Duration)
		events.Record(m.audit, events.Event{
			Type:        events.TypeCommandExecuted,
			Command:     command,
			PlanID:      plan.ID,
			ExecutionID: execID,
			Data: map[string]interface{}{
				"step":      step.Number,
				"exit_code": res.ExitCode,
				"success":   res.Success(),
			},
		})

		switch {
		case res.Aborted:
			m.finish(execID, budget, types.ExecutionAborted, failureAborted)
			return
		case res.TimedOut:
			m.trip(execID, budget, log, step, &safety.BreakerError{
				Reason:  types.ReasonTimeLimit,
				Current: m.safety.Limits().WallClockSeconds,
				Limit:   m.safety.Limits().WallClockSeconds,
			})
			return
		}

		m.recordStep(execID, budget, types.StepResult{
			StepID:        step.ID,
			Success:       res.Success(),
			ExitCode:      res.ExitCode,
			OutputPreview: res.OutputPreview,
			Duration:      res.Duration,
		})

		if !res.Success() {
			if plan.OnFailure != types.OnFailureContinue {
				log.Warn("step failed", "step", step.Number, "exit_code", res.ExitCode)
				m.finish(execID, budget, types.ExecutionFailed, failureStepFailed)
				return
			}
			if err := budget.RecordRecovery(); err != nil {
				m.trip(execID, budget, log, step, err)
				return
			}
			log.Info("step failed, continuing", "step", step.Number, "exit_code", res.ExitCode)
		}
	}

	m.finish(execID, budget, types.ExecutionCompleted, "")
}

// awaitApproval blocks until the approval resolves or the execution is
// aborted. The second return is false only on abort.
func (m *Manager) awaitApproval(ctx context.Context, approvalID string) (approvalstore.Decision, bool) {
	done, ok := m.approvals.Done(approvalID)
	if !ok {
		// An approval that was never created cannot be granted.
		return approvalstore.Decision{}, true
	}
	select {
	case <-ctx.Done():
		return approvalstore.Decision{}, false
	case decision := <-done:
		return decision, true
	}
}

// recordStep appends a completed step result and advances the step cursor.
func (m *Manager) recordStep(execID string, budget *safety.Budget, result types.StepResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[execID]
	if !ok || types.IsTerminalExecutionState(exec.State) {
		return
	}
	exec.CompletedSteps = append(exec.CompletedSteps, result)
	exec.CurrentStep = len(exec.CompletedSteps)
	exec.Budget = budget.Snapshot(m.safety.SudoCount(), m.safety.Limits().MaxSudo)
}

// trip finishes the execution with a breaker failure and records the trip.
func (m *Manager) trip(execID string, budget *safety.Budget, log *slog.Logger, step types.Step, err error) {
	reason := "breaker"
	if be, ok := err.(*safety.BreakerError); ok {
		reason = be.Reason
	}
	log.Warn("circuit breaker tripped", "step", step.Number, "reason", reason)
	m.reg.RecordBreakerTrip(reason)
	events.Record(m.audit, events.Event{
		Type:        events.TypeBreakerTripped,
		Command:     step.Command,
		ExecutionID: execID,
		Data:        map[string]interface{}{"reason": reason, "step": step.Number},
	})
	m.finish(execID, budget, types.ExecutionFailed, reason)
}

// finish records the terminal state exactly once. The budget snapshot is
// frozen here so later status reads stay byte-identical.
func (m *Manager) finish(execID string, budget *safety.Budget, state, failureReason string) {
	m.mu.Lock()
	exec, ok := m.executions[execID]
	if !ok || types.IsTerminalExecutionState(exec.State) {
		m.mu.Unlock()
		return
	}
	now := m.nowFn().UTC()
	exec.State = state
	exec.FailureReason = failureReason
	exec.FinishedAt = &now
	exec.Budget = budget.Snapshot(m.safety.SudoCount(), m.safety.Limits().MaxSudo)
	m.mu.Unlock()

	m.reg.RecordExecutionFinished(state)
	data := map[string]interface{}{"state": state}
	if failureReason != "" {
		data["failure_reason"] = failureReason
	}
	events.Record(m.audit, events.Event{
		Type:        events.TypeExecutionFinished,
		ExecutionID: execID,
		Data:        data,
	})
}

// ExecuteApproved runs one standalone approved command through the same
// safety gates an execution step passes. Used when a lone approval is
// granted outside any plan.
func (m *Manager) ExecuteApproved(ctx context.Context, approval types.Approval) (types.StepResult, error) {
	command := approval.EffectiveCommand()

	if category := risk.Category(command); category != "" {
		if err := m.safety.Limiter().Allow(category); err != nil {
			m.reg.RecordDenial("rate_limit")
			events.Record(m.audit, events.Event{
				Type:       events.TypeRateLimitExceeded,
				Command:    command,
				ApprovalID: approval.ID,
				Data:       map[string]interface{}{"category": category},
			})
			return types.StepResult{}, err
		}
	}
	if risk.IsSudo(command) {
		if err := m.safety.RecordSudo(); err != nil {
			m.reg.RecordBreakerTrip(types.ReasonPrivilegeLimit)
			return types.StepResult{}, err
		}
		m.reg.RecordSudoEscalation()
		events.Record(m.audit, events.Event{
			Type:       events.TypeSudoUsed,
			Command:    command,
			ApprovalID: approval.ID,
		})
	}

	deadline := time.Duration(m.safety.Limits().WallClockSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	res := m.runFn(runCtx, command, m.execCfg)
	m.reg.RecordStep(res.Duration)
	events.Record(m.audit, events.Event{
		Type:       events.TypeCommandExecuted,
		Command:    command,
		ApprovalID: approval.ID,
		Data: map[string]interface{}{
			"exit_code": res.ExitCode,
			"success":   res.Success(),
		},
	})

	return types.StepResult{
		StepID:        approval.StepID,
		Success:       res.Success(),
		ExitCode:      res.ExitCode,
		OutputPreview: res.OutputPreview,
		Duration:      res.Duration,
	}, nil
}
