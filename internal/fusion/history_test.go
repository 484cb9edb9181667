package fusion

import (
	"testing"

	"flowsense/internal/model"
)

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 10; i++ {
		h.Push(float64(i), model.StateBaseline)
	}
	if h.Len() != 3 {
		t.Fatalf("expected bounded length 3, got %d", h.Len())
	}
}

func TestHistoryCurrentStreak(t *testing.T) {
	h := NewHistory(10)
	h.Push(50, model.StateBaseline)
	h.Push(65, model.StateLightFlow)
	h.Push(66, model.StateLightFlow)
	if got := h.CurrentStreak(); got != 2 {
		t.Fatalf("expected streak 2, got %d", got)
	}
}

func TestHistoryTrend(t *testing.T) {
	h := NewHistory(10)
	for _, s := range []float64{40, 40, 40, 60, 60, 60} {
		h.Push(s, model.StateBaseline)
	}
	if got := h.Trend(); got != model.TrendImproving {
		t.Fatalf("expected improving, got %s", got)
	}

	h.Reset()
	for _, s := range []float64{60, 60, 60, 40, 40, 40} {
		h.Push(s, model.StateBaseline)
	}
	if got := h.Trend(); got != model.TrendDeclining {
		t.Fatalf("expected declining, got %s", got)
	}

	h.Reset()
	for _, s := range []float64{50, 51, 52, 50, 51} {
		h.Push(s, model.StateBaseline)
	}
	if got := h.Trend(); got != model.TrendStable {
		t.Fatalf("expected stable, got %s", got)
	}

	h.Reset()
	h.Push(90, model.StateDeepFlow)
	if got := h.Trend(); got != model.TrendStable {
		t.Fatalf("single reading must be stable, got %s", got)
	}
}

func TestHistorySustainedFlow(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 3; i++ {
		h.Push(70, model.StateLightFlow)
	}
	if h.HasSustainedFlow() {
		t.Fatalf("three readings must not count as sustained")
	}
	h.Push(85, model.StateDeepFlow)
	if !h.HasSustainedFlow() {
		t.Fatalf("expected sustained flow after four flow readings")
	}
	h.Push(30, model.StateBaseline)
	if h.HasSustainedFlow() {
		t.Fatalf("non-flow reading must break the run")
	}
}

func TestHistoryCountRecent(t *testing.T) {
	h := NewHistory(10)
	h.Push(50, model.StatePreFlow)
	h.Push(65, model.StateLightFlow)
	h.Push(30, model.StateBaseline)
	if got := h.CountRecent(3, model.StatePreFlow, model.StateLightFlow); got != 2 {
		t.Fatalf("expected 2 matches, got %d", got)
	}
	if got := h.CountRecent(2, model.StatePreFlow); got != 0 {
		t.Fatalf("expected 0 matches in last 2, got %d", got)
	}
}
