package fusion

import (
	"time"

	"github.com/google/uuid"

	"flowsense/internal/baseline"
	"flowsense/internal/biometric"
	"flowsense/internal/config"
	"flowsense/internal/model"
)

// Collaborator contracts. The engine consumes already-resolved values; it
// never performs I/O and never blocks.
type BehavioralScorer interface {
	Score(features model.BehavioralFeatures) model.BehavioralResult
}

type FatigueDetector interface {
	Detect(in model.FatigueInput) model.FatigueResult
}

type CircadianSource interface {
	Multiplier(hour int) float64
	IsOptimalHour(hour int) bool
}

// CycleInput is everything one assessment cycle consumes. Biometric is nil
// when no wearable data arrived for the cycle.
type CycleInput struct {
	Behavioral     model.BehavioralFeatures
	Biometric      *biometric.Input
	SleepQuality   *float64
	SleepHours     *float64
	HoursSinceWake *float64
	CaffeineMg     float64
	TheanineMg     float64
	Timestamp      time.Time
}

// Engine fuses per-modality scores into one UnifiedFlowAssessment. One
// engine per user; the caller serializes Assess calls for a given user.
// No global state is shared between engines.
type Engine struct {
	cfg        config.FusionConfig
	userID     string
	baseline   *baseline.Store
	bioScorer  *biometric.Scorer
	behavioral BehavioralScorer
	fatigue    FatigueDetector
	circadian  CircadianSource
	history    *History
}

func NewEngine(cfg *config.Config, userID string, bl *baseline.Store, behavioral BehavioralScorer, fatigueDet FatigueDetector, circadian CircadianSource) *Engine {
	return &Engine{
		cfg:        cfg.Fusion,
		userID:     userID,
		baseline:   bl,
		bioScorer:  biometric.NewScorer(cfg.Biometric),
		behavioral: behavioral,
		fatigue:    fatigueDet,
		circadian:  circadian,
		history:    NewHistory(cfg.Fusion.HistoryLimit),
	}
}

func (e *Engine) UserID() string {
	return e.userID
}

func (e *Engine) Baseline() *baseline.Store {
	return e.baseline
}

// Assess runs one fusion cycle. It mutates only the bounded histories;
// baseline updates are a separate, explicit operation (UpdateBaseline).
func (e *Engine) Assess(in CycleInput) model.UnifiedFlowAssessment {
	now := in.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	behRes := e.behavioral.Score(in.Behavioral)

	var bioRes *model.BiometricFlowResult
	if in.Biometric != nil && in.Biometric.HRV.IsValid {
		bioIn := *in.Biometric
		if bioIn.SleepQuality == nil {
			bioIn.SleepQuality = in.SleepQuality
		}
		res := e.bioScorer.Evaluate(bioIn, e.baseline, now)
		e.bioScorer.Commit(res)
		bioRes = &res
	}

	contextual := e.contextualScore(in, now)

	bioW, behW, ctxW := e.weights(bioRes != nil)
	fused := behW*behRes.Score + ctxW*contextual*100
	var bioScore *float64
	if bioRes != nil {
		fused += bioW * bioRes.Score
		s := bioRes.Score
		bioScore = &s
	}

	fatRes := e.fatigue.Detect(model.FatigueInput{
		SessionMinutes: in.Behavioral.SessionMinutes,
		SessionsToday:  in.Behavioral.SessionsToday,
		SleepHours:     in.SleepHours,
		HoursSinceWake: in.HoursSinceWake,
	})
	mult := fatigueMultiplier(fatRes.Level)
	fused = clamp(fused*mult, 0, 100)

	state := e.determineState(fused, bioRes, fatRes.Level)
	conf := e.confidence(bioRes, behRes)
	recs := e.recommendations(state, bioRes, behRes, fatRes, in)

	e.history.Push(fused, state)

	return model.UnifiedFlowAssessment{
		ID:         uuid.NewString(),
		UserID:     e.userID,
		Score:      fused,
		State:      state,
		Confidence: conf,
		Breakdown: model.DataSourceBreakdown{
			BiometricScore:    bioScore,
			BehavioralScore:   behRes.Score,
			ContextualScore:   contextual,
			BiometricWeight:   bioW,
			BehavioralWeight:  behW,
			ContextualWeight:  ctxW,
			FatigueLevel:      fatRes.Level,
			FatigueMultiplier: mult,
		},
		Recommendations: recs,
		Timestamp:       now,
	}
}

// UpdateBaseline folds a valid reading into the personal baseline. Kept
// separate from Assess so scoring stays side-effect-bounded.
func (e *Engine) UpdateBaseline(in biometric.Input, now time.Time) {
	e.baseline.UpdateWithReading(in.HRV, in.HeartRate, in.SleepQuality, now)
}

// Reset clears session histories at a session boundary. The baseline is
// long-lived and survives.
func (e *Engine) Reset() {
	e.history.Reset()
	e.bioScorer.Reset()
}

// contextualScore starts neutral and shifts with sleep, circadian phase,
// and stimulant timing, clamped to [0,1].
func (e *Engine) contextualScore(in CycleInput, now time.Time) float64 {
	score := 0.5

	sleep := e.baseline.Baseline().AvgSleepQuality
	if in.SleepQuality != nil {
		sleep = clamp(*in.SleepQuality, 0, 1)
	}
	score += (sleep - 0.5) * 0.4

	hour := in.Behavioral.HourOfDay
	if hour <= 0 && now.Hour() != 0 {
		hour = now.Hour()
	}
	score += (e.circadian.Multiplier(hour) - 1.0) * 0.4

	score += substanceBonus(in.CaffeineMg, in.TheanineMg)
	return clamp(score, 0, 1)
}

// substanceBonus is the capped stimulant-timing adjustment: a small boost
// in the empirically useful caffeine range, a penalty past 300 mg, and a
// synergy bonus for co-occurring L-theanine.
func substanceBonus(caffeineMg, theanineMg float64) float64 {
	bonus := 0.0
	inRange := caffeineMg >= 50 && caffeineMg <= 200
	if inRange {
		bonus += 0.05
	}
	if caffeineMg > 300 {
		bonus -= 0.05
	}
	if theanineMg >= 100 && inRange {
		bonus += 0.05
	}
	return clamp(bonus, -0.1, 0.1)
}

// weights returns (biometric, behavioral, contextual). Without biometric
// data the freed weight shifts toward context, reflecting the higher
// uncertainty of phone-only estimation.
func (e *Engine) weights(hasBiometric bool) (float64, float64, float64) {
	if hasBiometric {
		return e.cfg.BiometricWeight, e.cfg.BehavioralWeight, e.cfg.ContextualWeight
	}
	return 0, e.cfg.PhoneOnlyBehavioral, e.cfg.PhoneOnlyContextual
}

func fatigueMultiplier(level model.FatigueLevel) float64 {
	switch level {
	case model.FatigueMild:
		return 0.95
	case model.FatigueModerate:
		return 0.85
	case model.FatigueHigh:
		return 0.70
	case model.FatigueSevere:
		return 0.50
	default:
		return 1.00
	}
}

// determineState applies the fused-state priority order: severe-fatigue
// override, biometric state propagation gated on the fused score, high
// fatigue, then threshold logic with the same persistence discipline the
// biometric scorer uses.
func (e *Engine) determineState(fused float64, bioRes *model.BiometricFlowResult, level model.FatigueLevel) model.FlowState {
	if level == model.FatigueSevere {
		return model.StateRecovering
	}
	if bioRes != nil {
		switch bioRes.State {
		case model.StateOverload:
			return model.StateOverload
		case model.StateDeepFlow:
			if fused >= e.cfg.DeepFlowPropagate {
				return model.StateDeepFlow
			}
		case model.StateLightFlow:
			if fused >= e.cfg.LightFlowPropagate {
				return model.StateLightFlow
			}
		}
	}
	if level == model.FatigueHigh {
		return model.StateRecovering
	}
	if fused >= e.cfg.DeepFlowThreshold && e.history.CountRecent(3, model.StateDeepFlow, model.StateLightFlow) >= 2 {
		return model.StateDeepFlow
	}
	if fused >= e.cfg.LightFlowThreshold && e.history.CountRecent(2, model.StateDeepFlow, model.StateLightFlow, model.StatePreFlow) >= 1 {
		return model.StateLightFlow
	}
	if fused >= e.cfg.PreFlowThreshold {
		return model.StatePreFlow
	}
	return model.StateBaseline
}

// confidence arbitration: the baseline gates everything; biometric
// confidence upgrades the scale, phone-only caps it at Low.
func (e *Engine) confidence(bioRes *model.BiometricFlowResult, behRes model.BehavioralResult) model.FusedConfidence {
	if !e.baseline.IsCalibrated() {
		return model.FusedVeryLow
	}
	if bioRes != nil {
		switch bioRes.Confidence {
		case model.ConfidenceHigh:
			return model.FusedVeryHigh
		case model.ConfidenceMedium:
			return model.FusedHigh
		default:
			return model.FusedMedium
		}
	}
	if behRes.Confidence == model.ConfidenceLow {
		return model.FusedVeryLow
	}
	return model.FusedLow
}

// Read-only session queries.

func (e *Engine) IsInFlow() bool {
	st, ok := e.history.CurrentState()
	return ok && st.IsFlow()
}

// TimeInCurrentState is approximate: consecutive readings in the current
// state times the nominal reading cadence.
func (e *Engine) TimeInCurrentState() time.Duration {
	return time.Duration(float64(e.history.CurrentStreak()) * e.cfg.ReadingSeconds * float64(time.Second))
}

func (e *Engine) HasSustainedFlow() bool {
	return e.history.HasSustainedFlow()
}

func (e *Engine) ScoreTrend() model.ScoreTrend {
	return e.history.Trend()
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
