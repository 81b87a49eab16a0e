package approvalstore

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wardd-org/wardd/internal/types"
)

var (
	// ErrNotFound is returned when no approval exists for the given ID.
	ErrNotFound = errors.New("approvalstore: approval not found")
	// ErrAlreadyResolved is returned when a decision was already recorded.
	// Approved and rejected are terminal; nothing re-opens them.
	ErrAlreadyResolved = errors.New("approvalstore: approval already resolved")
)

// Decision is the outcome handed to waiters when an approval resolves.
type Decision struct {
	Approved         bool
	EffectiveCommand string
}

type entry struct {
	approval types.Approval
	done     chan Decision
}

// Store keeps approvals in memory and lets execution goroutines block until
// a human decides.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nowFn   func() time.Time
}

// New returns an empty approval store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		nowFn:   time.Now,
	}
}

// Create inserts a pending approval.
func (s *Store) Create(a types.Approval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Status = types.ApprovalPending
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.nowFn().UTC()
	}
	s.entries[a.ID] = &entry{
		approval: a,
		done:     make(chan Decision, 1),
	}
}

// Get retrieves an approval by ID.
func (s *Store) Get(id string) (types.Approval, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return types.Approval{}, false
	}
	return e.approval, true
}

// List returns approvals newest first, optionally filtered by status.
func (s *Store) List(status string) []types.Approval {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Approval, 0, len(s.entries))
	for _, e := range s.entries {
		if status != "" && e.approval.Status != status {
			continue
		}
		out = append(out, e.approval)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Resolve records a decision. The edited command, when present, replaces
// the original for execution. Waiters are released exactly once; a second
// decision returns ErrAlreadyResolved and changes nothing.
func (s *Store) Resolve(id string, approved bool, editedCommand string) (types.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return types.Approval{}, ErrNotFound
	}
	if e.approval.Status != types.ApprovalPending {
		return e.approval, ErrAlreadyResolved
	}

	now := s.nowFn().UTC()
	e.approval.DecidedAt = &now
	if approved {
		e.approval.Status = types.ApprovalApproved
		e.approval.EditedCommand = editedCommand
	} else {
		e.approval.Status = types.ApprovalRejected
	}

	e.done <- Decision{
		Approved:         approved,
		EffectiveCommand: e.approval.EffectiveCommand(),
	}
	close(e.done)
	return e.approval, nil
}

// Done returns the channel that delivers the decision for an approval. The
// channel yields one Decision and is then closed.
func (s *Store) Done(id string) (<-chan Decision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.done, true
}
