package behavior

import (
	"math"

	"flowsense/internal/model"
)

// Scorer rates interaction-pattern features on a 0-100 scale. It is a
// reference implementation of the behavioral collaborator: typing rhythm,
// session shape, and consistency history, no physiology.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

func (s *Scorer) Score(f model.BehavioralFeatures) model.BehavioralResult {
	rhythm := rhythmScore(f.KeystrokeIntervals)
	session := sessionScore(f.SessionMinutes)
	consistency := math.Min(1, float64(f.StreakDays)/14.0)
	completion := clamp01(f.CompletionRate)

	raw := 0.35*rhythm + 0.25*session + 0.20*consistency + 0.20*completion
	score := clamp01(raw) * 100

	recs := make([]string, 0, 3)
	if rhythm < 0.5 && len(f.KeystrokeIntervals) > 10 {
		recs = append(recs, "Typing rhythm is uneven. Silence notifications for the next block.")
	}
	if f.SessionMinutes > 100 {
		recs = append(recs, "Long session. A 5-minute break restores focus more than pushing through.")
	}
	if consistency < 0.3 {
		recs = append(recs, "Short daily sessions at the same hour build a stronger focus habit.")
	}

	return model.BehavioralResult{
		Score:           score,
		Confidence:      s.confidence(f),
		Recommendations: recs,
	}
}

// rhythmScore rewards steady inter-keystroke timing. Uses the coefficient
// of variation of the interval series; a fully regular cadence scores 1.
func rhythmScore(intervals []float64) float64 {
	if len(intervals) < 5 {
		return 0.5
	}
	var n int
	var mean, m2 float64
	for _, v := range intervals {
		if v <= 0 {
			continue
		}
		n++
		diff := v - mean
		mean += diff / float64(n)
		m2 += diff * (v - mean)
	}
	if n < 5 || mean <= 0 {
		return 0.5
	}
	cv := math.Sqrt(m2/float64(n)) / mean
	return clamp01(1 - cv/2)
}

// sessionScore peaks for 25-90 minute sessions and falls off on both sides.
func sessionScore(minutes float64) float64 {
	switch {
	case minutes <= 0:
		return 0.3
	case minutes < 25:
		return 0.5 + minutes/25*0.5
	case minutes <= 90:
		return 1.0
	case minutes <= 180:
		return 1.0 - (minutes-90)/90*0.6
	default:
		return 0.4
	}
}

func (s *Scorer) confidence(f model.BehavioralFeatures) model.Confidence {
	points := 0
	if len(f.KeystrokeIntervals) >= 30 {
		points++
	}
	if f.SessionMinutes >= 10 {
		points++
	}
	if f.StreakDays >= 3 || f.SessionsToday >= 2 {
		points++
	}
	switch {
	case points >= 3:
		return model.ConfidenceHigh
	case points == 2:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
