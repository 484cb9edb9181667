package assessments

import (
	"sync"
	"time"

	"flowsense/internal/model"
)

// Store keeps a bounded ring of assessments plus a latest-per-user index.
// The ring answers history queries; the index answers "how is this user
// doing right now".
type Store struct {
	mu     sync.RWMutex
	buf    []model.UnifiedFlowAssessment
	latest map[string]model.UnifiedFlowAssessment
	limit  int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{
		latest: make(map[string]model.UnifiedFlowAssessment),
		limit:  limit,
	}
}

func (s *Store) Add(a model.UnifiedFlowAssessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[a.UserID] = a
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, a)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = a
}

// Latest returns the most recent assessment for a user.
func (s *Store) Latest(userID string) (model.UnifiedFlowAssessment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.latest[userID]
	return a, ok
}

// List returns up to limit assessments, newest last.
func (s *Store) List(limit int) []model.UnifiedFlowAssessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.UnifiedFlowAssessment, 0, limit)
	start := len(s.buf) - limit
	if start < 0 {
		start = 0
	}
	for i := start; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

// ListUser returns up to limit assessments for one user, newest last.
func (s *Store) ListUser(userID string, limit int) []model.UnifiedFlowAssessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.UnifiedFlowAssessment, 0)
	for _, a := range s.buf {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.UnifiedFlowAssessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.UnifiedFlowAssessment, 0)
	for _, a := range s.buf {
		if !a.Timestamp.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.latest = make(map[string]model.UnifiedFlowAssessment)
}
