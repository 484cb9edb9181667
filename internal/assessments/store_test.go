package assessments

import (
	"fmt"
	"testing"
	"time"

	"flowsense/internal/model"
)

func mk(user string, score float64, ts time.Time) model.UnifiedFlowAssessment {
	return model.UnifiedFlowAssessment{
		ID:        fmt.Sprintf("%s-%v", user, score),
		UserID:    user,
		Score:     score,
		State:     model.StateBaseline,
		Timestamp: ts,
	}
}

func TestStoreRingEviction(t *testing.T) {
	s := NewStore(3)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		s.Add(mk("u", float64(i), base.Add(time.Duration(i)*time.Second)))
	}
	got := s.List(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 kept, got %d", len(got))
	}
	if got[0].Score != 2 || got[2].Score != 4 {
		t.Fatalf("oldest not evicted: %v..%v", got[0].Score, got[2].Score)
	}
}

func TestStoreLatestPerUser(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	s.Add(mk("alice", 50, base))
	s.Add(mk("bob", 60, base))
	s.Add(mk("alice", 70, base.Add(time.Second)))

	a, ok := s.Latest("alice")
	if !ok || a.Score != 70 {
		t.Fatalf("expected alice latest 70, got %v ok=%v", a.Score, ok)
	}
	if _, ok := s.Latest("carol"); ok {
		t.Fatalf("unknown user must miss")
	}
}

func TestStoreListUser(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	s.Add(mk("alice", 50, base))
	s.Add(mk("bob", 60, base))
	s.Add(mk("alice", 70, base.Add(time.Second)))

	got := s.ListUser("alice", 0)
	if len(got) != 2 || got[1].Score != 70 {
		t.Fatalf("unexpected alice history: %v", got)
	}
	got = s.ListUser("alice", 1)
	if len(got) != 1 || got[0].Score != 70 {
		t.Fatalf("limit must keep newest: %v", got)
	}
}

func TestStoreSince(t *testing.T) {
	s := NewStore(10)
	base := time.Now().UTC()
	s.Add(mk("u", 1, base.Add(-time.Hour)))
	s.Add(mk("u", 2, base))
	got := s.Since(base.Add(-time.Minute))
	if len(got) != 1 || got[0].Score != 2 {
		t.Fatalf("unexpected since result: %v", got)
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore(10)
	s.Add(mk("u", 1, time.Now().UTC()))
	s.Clear()
	if len(s.List(0)) != 0 {
		t.Fatalf("clear must drop the ring")
	}
	if _, ok := s.Latest("u"); ok {
		t.Fatalf("clear must drop the latest index")
	}
}
