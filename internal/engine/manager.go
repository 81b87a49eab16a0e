// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine drives approved plans through the executor, one goroutine
// per execution, with every step passing through the safety gates in order:
// abort, operation budget, wall clock, approval, rate limit, sudo ceiling.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/executor"
	"github.com/wardd-org/wardd/internal/safety"
	"github.com/wardd-org/wardd/internal/server/approvalstore"
	"github.com/wardd-org/wardd/internal/server/metrics"
	"github.com/wardd-org/wardd/internal/types"
)

// ErrCapacity is returned when no execution slot is available.
var ErrCapacity = errors.New("engine: execution capacity exhausted")

// ErrNotFound is returned for unknown execution IDs.
var ErrNotFound = errors.New("engine: execution not found")

// ErrTerminal is returned when a kill targets an already-finished execution.
var ErrTerminal = errors.New("engine: execution already terminal")

// ErrPlanExecuted is returned when an approve targets a plan that already
// transitioned to an execution. Start hands back the existing snapshot
// alongside it.
var ErrPlanExecuted = errors.New("engine: plan already has an execution")

const defaultMaxConcurrent = 4

// Options configures a Manager.
type Options struct {
	Safety        *safety.State
	Approvals     *approvalstore.Store
	Audit         events.Sink
	Logger        *slog.Logger
	Registry      *metrics.Registry
	Executor      executor.Config
	MaxConcurrent int64
}

// Manager owns all live executions. Execution state is mutated only by the
// goroutine driving it; everyone else reads deep-copied snapshots.
type Manager struct {
	safety    *safety.State
	approvals *approvalstore.Store
	audit     events.Sink
	log       *slog.Logger
	reg       *metrics.Registry
	execCfg   executor.Config
	sem       *semaphore.Weighted

	mu         sync.RWMutex
	executions map[string]*types.Execution
	planExecs  map[string]string // plan ID -> execution ID, never unbound
	running    sync.Map          // execution ID -> context.CancelFunc

	// runFn is swapped in tests to avoid spawning real shells.
	runFn func(ctx context.Context, command string, cfg executor.Config) executor.Result
	nowFn func() time.Time
}

// NewManager constructs a Manager from options, filling in defaults.
func NewManager(opts Options) *Manager {
	if opts.Safety == nil {
		opts.Safety = safety.NewState(safety.DefaultLimits(), nil)
	}
	if opts.Approvals == nil {
		opts.Approvals = approvalstore.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = metrics.Default
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	return &Manager{
		safety:     opts.Safety,
		approvals:  opts.Approvals,
		audit:      opts.Audit,
		log:        opts.Logger,
		reg:        opts.Registry,
		execCfg:    opts.Executor,
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
		executions: make(map[string]*types.Execution),
		planExecs:  make(map[string]string),
		runFn:      executor.Run,
		nowFn:      time.Now,
	}
}

// Start launches an execution for the plan and returns its initial
// snapshot. The plan must already carry approvals for its gated steps.
// A plan transitions to at most one execution: a second Start for the
// same plan ID returns the existing snapshot with ErrPlanExecuted.
func (m *Manager) Start(plan types.Plan) (types.Execution, error) {
	if !m.sem.TryAcquire(1) {
		return types.Execution{}, ErrCapacity
	}

	budget := m.safety.NewBudget()
	exec := &types.Execution{
		ID:         uuid.NewString(),
		PlanID:     plan.ID,
		State:      types.ExecutionRunning,
		TotalSteps: len(plan.Steps),
		Budget:     budget.Snapshot(m.safety.SudoCount(), m.safety.Limits().MaxSudo),
		StartedAt:  m.nowFn().UTC(),
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if prior, bound := m.planExecs[plan.ID]; bound && plan.ID != "" {
		snap := m.executions[prior].Clone()
		m.mu.Unlock()
		cancel()
		m.sem.Release(1)
		return snap, ErrPlanExecuted
	}
	m.executions[exec.ID] = exec
	if plan.ID != "" {
		m.planExecs[plan.ID] = exec.ID
	}
	m.mu.Unlock()
	m.running.Store(exec.ID, cancel)

	m.reg.RecordExecutionStarted()
	events.Record(m.audit, events.Event{
		Type:        events.TypeExecutionStarted,
		PlanID:      plan.ID,
		ExecutionID: exec.ID,
		Data:        map[string]interface{}{"total_steps": len(plan.Steps), "on_failure": plan.OnFailure},
	})

	go m.run(ctx, cancel, exec.ID, plan.Clone(), budget)

	return exec.Clone(), nil
}

// Snapshot returns a deep copy of the execution state. Reads have no side
// effects; two consecutive reads with no state change in between return
// identical values.
func (m *Manager) Snapshot(id string) (types.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exec, ok := m.executions[id]
	if !ok {
		return types.Execution{}, ErrNotFound
	}
	return exec.Clone(), nil
}

// List returns snapshots of all executions, newest first.
func (m *Manager) List() []types.Execution {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Execution, 0, len(m.executions))
	for _, exec := range m.executions {
		out = append(out, exec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Kill requests a cooperative abort. The currently running step's context
// is cancelled; steps that already completed stay completed. Kill returns
// ErrTerminal when the execution already finished.
func (m *Manager) Kill(id string) (types.Execution, error) {
	m.mu.RLock()
	exec, ok := m.executions[id]
	var snap types.Execution
	if ok {
		snap = exec.Clone()
	}
	m.mu.RUnlock()
	if !ok {
		return types.Execution{}, ErrNotFound
	}
	if types.IsTerminalExecutionState(snap.State) {
		return snap, ErrTerminal
	}
	if cancel, ok := m.running.Load(id); ok {
		cancel.(context.CancelFunc)()
	}
	return m.Snapshot(id)
}
