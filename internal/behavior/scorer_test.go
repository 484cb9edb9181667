package behavior

import (
	"testing"

	"flowsense/internal/model"
)

func steadyIntervals(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 180
	}
	return out
}

func TestSteadyTypistInGoodSession(t *testing.T) {
	s := NewScorer()
	res := s.Score(model.BehavioralFeatures{
		SessionMinutes:     45,
		KeystrokeIntervals: steadyIntervals(40),
		StreakDays:         14,
		CompletionRate:     1.0,
		SessionsToday:      2,
	})
	// rhythm 1.0, session 1.0, consistency 1.0, completion 1.0
	if res.Score != 100 {
		t.Fatalf("expected perfect score, got %v", res.Score)
	}
	if res.Confidence != model.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", res.Confidence)
	}
	if len(res.Recommendations) != 0 {
		t.Fatalf("no recommendations expected, got %v", res.Recommendations)
	}
}

func TestErraticTypingLowersScore(t *testing.T) {
	s := NewScorer()
	erratic := []float64{40, 40, 40, 40, 3000, 40, 40, 40, 2800, 40, 40, 40}
	steady := s.Score(model.BehavioralFeatures{SessionMinutes: 45, KeystrokeIntervals: steadyIntervals(12)})
	jumpy := s.Score(model.BehavioralFeatures{SessionMinutes: 45, KeystrokeIntervals: erratic})
	if jumpy.Score >= steady.Score {
		t.Fatalf("erratic typing must score below steady: %v >= %v", jumpy.Score, steady.Score)
	}
	found := false
	for _, r := range jumpy.Recommendations {
		if r == "Typing rhythm is uneven. Silence notifications for the next block." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rhythm recommendation, got %v", jumpy.Recommendations)
	}
}

func TestFewIntervalsScoreNeutral(t *testing.T) {
	s := NewScorer()
	res := s.Score(model.BehavioralFeatures{SessionMinutes: 45, KeystrokeIntervals: []float64{180, 190}})
	// rhythm falls back to 0.5 under five samples
	want := (0.35*0.5 + 0.25*1.0) * 100
	if res.Score != want {
		t.Fatalf("expected %v, got %v", want, res.Score)
	}
}

func TestSessionShape(t *testing.T) {
	cases := []struct {
		minutes float64
		want    float64
	}{
		{0, 0.3},
		{12.5, 0.75},
		{25, 1.0},
		{90, 1.0},
		{135, 0.7},
		{240, 0.4},
	}
	for _, tc := range cases {
		if got := sessionScore(tc.minutes); got != tc.want {
			t.Fatalf("sessionScore(%v)=%v, want %v", tc.minutes, got, tc.want)
		}
	}
}

func TestLongSessionRecommendation(t *testing.T) {
	s := NewScorer()
	res := s.Score(model.BehavioralFeatures{SessionMinutes: 130, StreakDays: 10})
	found := false
	for _, r := range res.Recommendations {
		if r == "Long session. A 5-minute break restores focus more than pushing through." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected long-session recommendation, got %v", res.Recommendations)
	}
}

func TestConfidenceLadder(t *testing.T) {
	s := NewScorer()
	low := s.Score(model.BehavioralFeatures{SessionMinutes: 5})
	if low.Confidence != model.ConfidenceLow {
		t.Fatalf("expected low, got %s", low.Confidence)
	}
	med := s.Score(model.BehavioralFeatures{SessionMinutes: 20, StreakDays: 4})
	if med.Confidence != model.ConfidenceMedium {
		t.Fatalf("expected medium, got %s", med.Confidence)
	}
}
