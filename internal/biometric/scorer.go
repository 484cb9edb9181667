package biometric

import (
	"math"
	"time"

	"flowsense/internal/baseline"
	"flowsense/internal/config"
	"flowsense/internal/model"
)

const historyLimit = 10

// Input is one evaluation's worth of already-resolved biometric values.
type Input struct {
	HRV          model.HRVMetrics
	HeartRate    float64
	SleepQuality *float64
}

// Scorer converts HRV + heart rate + sleep readiness into a biometric flow
// result. It keeps a bounded state/score history for hysteresis; callers
// must serialize use per user.
type Scorer struct {
	cfg    config.BiometricConfig
	states []model.FlowState
	scores []float64
}

func NewScorer(cfg config.BiometricConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Evaluate computes the result against the current history without
// recording it. Calling it twice with the same inputs and unchanged history
// yields the same result; use Commit to advance the history.
func (s *Scorer) Evaluate(in Input, bl *baseline.Store, now time.Time) model.BiometricFlowResult {
	b := bl.Baseline()

	para := parasympatheticScore(in.HRV.RMSSD, b.RestingRMSSD)
	sympPct := s.sympatheticPercentile(in.HRV, b)
	symp := sympatheticScore(sympPct)
	hrZone := heartRateZoneScore(in.HeartRate, b.RestingHR)
	sleep := s.sleepReadiness(in.SleepQuality, b)
	signal := signalQuality(in.HRV)

	w := s.cfg.Weights
	raw := w.Parasympathetic*para +
		w.Sympathetic*symp +
		w.HeartRateZone*hrZone +
		w.SleepReadiness*sleep +
		w.SignalQuality*signal
	score := clamp(raw*100, 0, 100)

	state := s.determineState(score, sympPct, para)

	return model.BiometricFlowResult{
		Score: score,
		State: state,
		Breakdown: model.ScoreBreakdown{
			Parasympathetic: para,
			Sympathetic:     symp,
			HeartRateZone:   hrZone,
			SleepReadiness:  sleep,
			SignalQuality:   signal,
		},
		SympatheticPercentile: sympPct,
		Confidence:            s.confidence(in.HRV, b, now),
		RecentStates:          s.recentStates(5),
		Recommendation:        stateRecommendation(state),
		Timestamp:             now,
	}
}

// Commit records a result into the hysteresis history.
func (s *Scorer) Commit(res model.BiometricFlowResult) {
	s.states = append(s.states, res.State)
	if len(s.states) > historyLimit {
		s.states = s.states[len(s.states)-historyLimit:]
	}
	s.scores = append(s.scores, res.Score)
	if len(s.scores) > historyLimit {
		s.scores = s.scores[len(s.scores)-historyLimit:]
	}
}

// Reset clears session history at a session boundary.
func (s *Scorer) Reset() {
	s.states = nil
	s.scores = nil
}

// parasympatheticScore maps the RMSSD ratio to baseline onto [0,1].
// Higher parasympathetic tone is monotonically favorable.
func parasympatheticScore(rmssd, restingRMSSD float64) float64 {
	if restingRMSSD <= 0 || rmssd <= 0 {
		return 0.5
	}
	ratio := rmssd / restingRMSSD
	switch {
	case ratio < 0.5:
		return 0.2
	case ratio < 0.8:
		return 0.2 + (ratio-0.5)/0.3*0.3
	case ratio < 1.0:
		return 0.5 + (ratio-0.8)/0.2*0.3
	default:
		// 0.8 -> 1.0 over [1.0,1.2], clamped at 1.0 beyond.
		return math.Min(1.0, 0.8+(ratio-1.0))
	}
}

// sympatheticPercentile ranks LF power against the personal distribution.
// When frequency-domain data is missing, LF is estimated from time-domain
// values (SDNN^2 - RMSSD^2, an approximation, not a measurement); when the
// distribution is unpopulated, the percentile falls back to the source's
// ratio*0.5 heuristic.
func (s *Scorer) sympatheticPercentile(hrv model.HRVMetrics, b *model.BiometricBaseline) float64 {
	var lf float64
	switch {
	case hrv.LFPower != nil && *hrv.LFPower > 0:
		lf = *hrv.LFPower
	case hrv.SDNN != nil:
		lf = math.Max(0, *hrv.SDNN**hrv.SDNN-hrv.RMSSD*hrv.RMSSD)
	default:
		return 0.5
	}
	if len(b.LFPercentiles) == 5 {
		return baseline.PercentileRank(lf, b.LFPercentiles)
	}
	if b.RestingLFPower <= 0 {
		return 0.5
	}
	return math.Min(1, lf/b.RestingLFPower*0.5)
}

// sympatheticScore is the inverted-U: moderate arousal scores best, with a
// floor inside the optimal band and hard penalties at the extremes.
func sympatheticScore(pct float64) float64 {
	score := 1 - 2*math.Abs(pct-0.5)
	if pct >= 0.40 && pct <= 0.60 {
		score = math.Max(score, 0.9)
	}
	if pct > 0.90 {
		score *= 0.3
	} else if pct < 0.10 {
		score *= 0.5
	}
	return clamp(score, 0, 1)
}

func heartRateZoneScore(hr, restingHR float64) float64 {
	if restingHR <= 0 || hr <= 0 {
		return 0.5
	}
	ratio := hr / restingHR
	switch {
	case ratio < 1.0:
		return math.Max(0.3, 0.7*ratio)
	case ratio < 1.10:
		return 0.7 + (ratio-1.0)/0.10*0.3
	case ratio <= 1.30:
		return 1.0
	case ratio <= 1.50:
		// Past the optimal band the score drops to its 0.5 floor.
		return 0.5
	default:
		return 0.2
	}
}

func (s *Scorer) sleepReadiness(quality *float64, b *model.BiometricBaseline) float64 {
	if quality != nil {
		return clamp(*quality, 0, 1)
	}
	return clamp(b.AvgSleepQuality, 0, 1)
}

func signalQuality(hrv model.HRVMetrics) float64 {
	if !hrv.IsValid {
		return 0.3
	}
	return clamp(1-hrv.ArtifactPct, 0, 1)
}

// determineState applies the ordered state rules. Overload is an
// unconditional safety override; flow states require persistence in the
// recent history to suppress flicker.
func (s *Scorer) determineState(score, sympPct, para float64) model.FlowState {
	if sympPct > s.cfg.OverloadPercentile {
		return model.StateOverload
	}
	if sympPct < s.cfg.BoredomPercentile && para > 0.7 {
		return model.StateBoredom
	}
	if score >= s.cfg.DeepFlowThreshold && s.countRecent(3, model.StateDeepFlow, model.StateLightFlow) >= 2 {
		return model.StateDeepFlow
	}
	if score >= s.cfg.LightFlowThreshold && s.countRecent(2, model.StateDeepFlow, model.StateLightFlow, model.StatePreFlow) >= 1 {
		return model.StateLightFlow
	}
	if score >= s.cfg.PreFlowThreshold {
		return model.StatePreFlow
	}
	return model.StateBaseline
}

func (s *Scorer) countRecent(n int, states ...model.FlowState) int {
	start := len(s.states) - n
	if start < 0 {
		start = 0
	}
	count := 0
	for _, st := range s.states[start:] {
		for _, want := range states {
			if st == want {
				count++
				break
			}
		}
	}
	return count
}

func (s *Scorer) recentStates(n int) []model.FlowState {
	start := len(s.states) - n
	if start < 0 {
		start = 0
	}
	return append([]model.FlowState{}, s.states[start:]...)
}

func (s *Scorer) confidence(hrv model.HRVMetrics, b *model.BiometricBaseline, now time.Time) model.Confidence {
	if !b.IsCalibrated {
		return model.ConfidenceLow
	}
	ageDays := 0
	if !b.LastUpdated.IsZero() {
		ageDays = int(now.Sub(b.LastUpdated).Hours() / 24)
	}
	if ageDays > 2*s.cfg.StaleDataDays {
		return model.ConfidenceLow
	}
	if hrv.ArtifactPct > s.cfg.ArtifactConfidence || ageDays >= s.cfg.StaleDataDays {
		return model.ConfidenceMedium
	}
	return model.ConfidenceHigh
}

func stateRecommendation(state model.FlowState) string {
	switch state {
	case model.StateDeepFlow:
		return "Deep flow. Protect this block from interruptions."
	case model.StateLightFlow:
		return "Light flow. Keep the current task scope steady."
	case model.StatePreFlow:
		return "Warming up. A single clear goal can tip you into flow."
	case model.StateOverload:
		return "Arousal is well above your optimal band. Take a short breathing break."
	case model.StateBoredom:
		return "Engagement is low. Raise the challenge or switch tasks."
	default:
		return "Near baseline. A brief walk before the next focus block can help."
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
