package planstore

import (
	"sort"
	"sync"

	"github.com/wardd-org/wardd/internal/types"
)

// Store keeps submitted plans in memory for serve mode. Plans are immutable
// once created; the store hands out deep copies so callers can never mutate
// a stored plan in place.
type Store struct {
	mu    sync.RWMutex
	plans map[string]types.Plan
}

// New returns an empty plan store.
func New() *Store {
	return &Store{
		plans: make(map[string]types.Plan),
	}
}

// Create inserts a plan.
func (s *Store) Create(p types.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p.Clone()
}

// Get retrieves a plan by ID.
func (s *Store) Get(id string) (types.Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return types.Plan{}, false
	}
	return p.Clone(), true
}

// SetStepApproval records the approval created for a step. This is the only
// mutation the store permits and it never changes the step's command or
// risk fields.
func (s *Store) SetStepApproval(planID, stepID, approvalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return false
	}
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			p.Steps[i].ApprovalID = approvalID
			s.plans[planID] = p
			return true
		}
	}
	return false
}

// List returns plans sorted by CreatedAt descending.
func (s *Store) List() []types.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
