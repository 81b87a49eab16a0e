// SPDX-License-Identifier: AGPL-3.0-or-later
package safety

import (
	"time"

	"github.com/wardd-org/wardd/internal/types"
)

// Budget tracks one execution's consumption against the hard limits. It is
// created fresh per execution and owned by the engine goroutine driving it;
// only the sudo counter lives elsewhere (session-scoped, on State).
type Budget struct {
	limits     Limits
	started    time.Time
	operations int
	recoveries int
	nowFn      func() time.Time
}

// NewBudget starts a budget clock against the supplied limits.
func NewBudget(limits Limits) *Budget {
	return &Budget{
		limits:  limits,
		started: time.Now(),
		nowFn:   time.Now,
	}
}

// BeginOperation reserves one operation slot. It returns a *BreakerError
// with reason operation_cap_exceeded when the cap would be crossed; the
// operation is not counted in that case.
func (b *Budget) BeginOperation() error {
	if b.operations+1 > b.limits.MaxOperations {
		return &BreakerError{
			Reason:  types.ReasonOperationCap,
			Current: b.operations,
			Limit:   b.limits.MaxOperations,
		}
	}
	b.operations++
	return nil
}

// CheckTime verifies the wall-clock ceiling measured from budget creation.
func (b *Budget) CheckTime() error {
	elapsed := b.nowFn().Sub(b.started)
	if elapsed >= time.Duration(b.limits.WallClockSeconds)*time.Second {
		return &BreakerError{
			Reason:  types.ReasonTimeLimit,
			Current: int(elapsed.Seconds()),
			Limit:   b.limits.WallClockSeconds,
		}
	}
	return nil
}

// Deadline returns the instant the wall-clock budget expires.
func (b *Budget) Deadline() time.Time {
	return b.started.Add(time.Duration(b.limits.WallClockSeconds) * time.Second)
}

// RecordRecovery counts one automated recovery. Once the checkpoint ceiling
// is reached it returns a *BreakerError with reason checkpoint_required:
// a human must look before automation continues.
func (b *Budget) RecordRecovery() error {
	b.recoveries++
	if b.recoveries >= b.limits.CheckpointAfter {
		return &BreakerError{
			Reason:  types.ReasonCheckpoint,
			Current: b.recoveries,
			Limit:   b.limits.CheckpointAfter,
		}
	}
	return nil
}

// Snapshot reports consumption for status payloads.
func (b *Budget) Snapshot(sudoCount, maxSudo int) types.BudgetSnapshot {
	return types.BudgetSnapshot{
		OperationsExecuted: b.operations,
		MaxOperations:      b.limits.MaxOperations,
		SudoEscalations:    sudoCount,
		MaxSudoEscalations: maxSudo,
		Recoveries:         b.recoveries,
		CheckpointAfter:    b.limits.CheckpointAfter,
		ElapsedSeconds:     int(b.nowFn().Sub(b.started).Seconds()),
		WallClockSeconds:   b.limits.WallClockSeconds,
	}
}
