package usecase

import (
	"sync"

	"github.com/osk/fintrack/internal/domain"
)

// RecomputeScope collects recompute signals during a bulk operation instead
// of letting each row trigger the scheduler. The importer passes the scope
// into every enqueue and flushes it once at the end, producing one coalesced
// request per touched account. Suppression is scoped to the operation
// holding the value, not to the whole process.
type RecomputeScope struct {
	mu      sync.Mutex
	pending map[string]*domain.RecomputeRequest
}

// NewRecomputeScope creates an empty scope.
func NewRecomputeScope() *RecomputeScope {
	return &RecomputeScope{
		pending: make(map[string]*domain.RecomputeRequest),
	}
}

// Request records a signal, coalescing per account on minimum from-date.
func (s *RecomputeScope) Request(req domain.RecomputeRequest) {
	if req.AccountID == "" {
		return
	}
	key := recomputeKey(req.TenantID, req.AccountID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if pending, found := s.pending[key]; found {
		pending.Coalesce(req)
		return
	}
	r := req
	s.pending[key] = &r
}

// Flush forwards the coalesced requests to the scheduler and empties the
// scope.
func (s *RecomputeScope) Flush(sched RecomputeScheduler) {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]*domain.RecomputeRequest)
	s.mu.Unlock()

	for _, req := range pending {
		sched.Request(*req)
	}
}

// Len reports how many accounts have a pending request.
func (s *RecomputeScope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
