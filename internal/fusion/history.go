package fusion

import "flowsense/internal/model"

// History is the engine's bounded rolling record of fused scores and
// states, used for hysteresis and trend queries. Not safe for concurrent
// mutation; the owning engine is caller-serialized.
type History struct {
	limit  int
	scores []float64
	states []model.FlowState
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 10
	}
	return &History{limit: limit}
}

func (h *History) Push(score float64, state model.FlowState) {
	h.scores = append(h.scores, score)
	if len(h.scores) > h.limit {
		h.scores = h.scores[len(h.scores)-h.limit:]
	}
	h.states = append(h.states, state)
	if len(h.states) > h.limit {
		h.states = h.states[len(h.states)-h.limit:]
	}
}

func (h *History) Reset() {
	h.scores = nil
	h.states = nil
}

func (h *History) Len() int {
	return len(h.states)
}

func (h *History) CurrentState() (model.FlowState, bool) {
	if len(h.states) == 0 {
		return "", false
	}
	return h.states[len(h.states)-1], true
}

// CurrentStreak counts consecutive trailing readings in the current state.
func (h *History) CurrentStreak() int {
	if len(h.states) == 0 {
		return 0
	}
	last := h.states[len(h.states)-1]
	n := 0
	for i := len(h.states) - 1; i >= 0; i-- {
		if h.states[i] != last {
			break
		}
		n++
	}
	return n
}

// CountRecent reports how many of the last n states match any of the given
// states.
func (h *History) CountRecent(n int, states ...model.FlowState) int {
	start := len(h.states) - n
	if start < 0 {
		start = 0
	}
	count := 0
	for _, st := range h.states[start:] {
		for _, want := range states {
			if st == want {
				count++
				break
			}
		}
	}
	return count
}

// Trend compares a 3-reading moving average against an up-to-5-reading one;
// a swing of 5 points or more reports a direction.
func (h *History) Trend() model.ScoreTrend {
	if len(h.scores) < 2 {
		return model.TrendStable
	}
	recent := tailMean(h.scores, 3)
	longer := tailMean(h.scores, 5)
	switch {
	case recent-longer >= 5:
		return model.TrendImproving
	case longer-recent >= 5:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// HasSustainedFlow is true only when the last four readings were all flow
// states.
func (h *History) HasSustainedFlow() bool {
	if len(h.states) < 4 {
		return false
	}
	for _, st := range h.states[len(h.states)-4:] {
		if !st.IsFlow() {
			return false
		}
	}
	return true
}

func tailMean(values []float64, n int) float64 {
	start := len(values) - n
	if start < 0 {
		start = 0
	}
	tail := values[start:]
	if len(tail) == 0 {
		return 0
	}
	var s float64
	for _, v := range tail {
		s += v
	}
	return s / float64(len(tail))
}
