package model

import "time"

// FlowState is the discrete estimate of where a user sits on the flow curve.
// The biometric scorer may report Boredom; the fusion engine may report
// Recovering. The remaining values are shared.
type FlowState string

const (
	StateDeepFlow   FlowState = "deep_flow"
	StateLightFlow  FlowState = "light_flow"
	StatePreFlow    FlowState = "pre_flow"
	StateBaseline   FlowState = "baseline"
	StateOverload   FlowState = "overload"
	StateBoredom    FlowState = "boredom"
	StateRecovering FlowState = "recovering"
)

func (s FlowState) IsFlow() bool {
	return s == StateDeepFlow || s == StateLightFlow
}

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// FusedConfidence is the five-level confidence of a fused assessment.
type FusedConfidence string

const (
	FusedVeryLow  FusedConfidence = "very_low"
	FusedLow      FusedConfidence = "low"
	FusedMedium   FusedConfidence = "medium"
	FusedHigh     FusedConfidence = "high"
	FusedVeryHigh FusedConfidence = "very_high"
)

type FatigueLevel string

const (
	FatigueFresh    FatigueLevel = "fresh"
	FatigueMild     FatigueLevel = "mild"
	FatigueModerate FatigueLevel = "moderate"
	FatigueHigh     FatigueLevel = "high"
	FatigueSevere   FatigueLevel = "severe"
)

type Chronotype string

const (
	ChronotypeEarlyBird    Chronotype = "early_bird"
	ChronotypeIntermediate Chronotype = "intermediate"
	ChronotypeNightOwl     Chronotype = "night_owl"
)

type ScoreTrend string

const (
	TrendImproving ScoreTrend = "improving"
	TrendStable    ScoreTrend = "stable"
	TrendDeclining ScoreTrend = "declining"
)

// Provenance distinguishes measured metrics from documented approximations.
type Provenance string

const (
	ProvenanceMeasured  Provenance = "measured"
	ProvenanceEstimated Provenance = "estimated"
)

// Sample is one normalized reading from the wearable bridge.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id"`
	HeartRate    float64   `json:"heart_rate,omitempty"`
	IBIms        []float64 `json:"ibi_ms,omitempty"`
	RMSSD        *float64  `json:"rmssd,omitempty"`
	SDNN         *float64  `json:"sdnn,omitempty"`
	SleepQuality *float64  `json:"sleep_quality,omitempty"`
	CaffeineMg   float64   `json:"caffeine_mg,omitempty"`
	TheanineMg   float64   `json:"theanine_mg,omitempty"`
	Source       string    `json:"source,omitempty"`
	Raw          string    `json:"raw,omitempty"`
}

// HRVMetrics is one sliding-window HRV snapshot. SDNN and the spectral
// powers are nil when the window did not permit computing them.
type HRVMetrics struct {
	RMSSD       float64    `json:"rmssd"`
	SDNN        *float64   `json:"sdnn,omitempty"`
	LFPower     *float64   `json:"lf_power,omitempty"`
	HFPower     *float64   `json:"hf_power,omitempty"`
	ArtifactPct float64    `json:"artifact_pct"`
	IsValid     bool       `json:"is_valid"`
	Provenance  Provenance `json:"provenance"`
	SampleCount int        `json:"sample_count"`
	WindowSec   float64    `json:"window_sec"`
	Timestamp   time.Time  `json:"timestamp"`
}

// BiometricBaseline is the long-lived per-user statistical profile.
// Percentile distributions are either empty or exactly five non-decreasing
// points at the 10th/25th/50th/75th/90th percentiles.
type BiometricBaseline struct {
	UserID              string          `json:"user_id"`
	RestingRMSSD        float64         `json:"resting_rmssd"`
	RMSSDStdDev         float64         `json:"rmssd_std_dev"`
	RestingHR           float64         `json:"resting_hr"`
	HRStdDev            float64         `json:"hr_std_dev"`
	RestingLFPower      float64         `json:"resting_lf_power"`
	RestingHFPower      float64         `json:"resting_hf_power"`
	LFPercentiles       []float64       `json:"lf_percentiles,omitempty"`
	RMSSDPercentiles    []float64       `json:"rmssd_percentiles,omitempty"`
	CircadianMultiplier map[int]float64 `json:"circadian_multipliers,omitempty"`
	AvgSleepQuality     float64         `json:"avg_sleep_quality"`
	AvgSleepHours       float64         `json:"avg_sleep_hours"`
	DaysOfData          int             `json:"days_of_data"`
	IsCalibrated        bool            `json:"is_calibrated"`
	LastUpdated         time.Time       `json:"last_updated"`
}

// ScoreBreakdown carries the biometric sub-scores, each in [0,1].
type ScoreBreakdown struct {
	Parasympathetic float64 `json:"parasympathetic"`
	Sympathetic     float64 `json:"sympathetic"`
	HeartRateZone   float64 `json:"heart_rate_zone"`
	SleepReadiness  float64 `json:"sleep_readiness"`
	SignalQuality   float64 `json:"signal_quality"`
}

// BiometricFlowResult is one biometric evaluation. Immutable once built.
type BiometricFlowResult struct {
	Score                 float64        `json:"score"`
	State                 FlowState      `json:"state"`
	Confidence            Confidence     `json:"confidence"`
	Breakdown             ScoreBreakdown `json:"breakdown"`
	SympatheticPercentile float64        `json:"sympathetic_percentile"`
	RecentStates          []FlowState    `json:"recent_states,omitempty"`
	Recommendation        string         `json:"recommendation,omitempty"`
	Timestamp             time.Time      `json:"timestamp"`
}

// BehavioralFeatures are the already-extracted interaction features the
// behavioral scorer consumes.
type BehavioralFeatures struct {
	SessionMinutes     float64   `json:"session_minutes"`
	KeystrokeIntervals []float64 `json:"keystroke_intervals,omitempty"`
	TouchCount         int       `json:"touch_count"`
	HourOfDay          int       `json:"hour_of_day"`
	StreakDays         int       `json:"streak_days"`
	CompletionRate     float64   `json:"completion_rate"`
	SessionsToday      int       `json:"sessions_today"`
}

type BehavioralResult struct {
	Score           float64    `json:"score"`
	Confidence      Confidence `json:"confidence"`
	Recommendations []string   `json:"recommendations,omitempty"`
}

// FatigueInput carries the context the fatigue detector evaluates.
type FatigueInput struct {
	SessionMinutes float64  `json:"session_minutes"`
	SessionsToday  int      `json:"sessions_today"`
	SleepHours     *float64 `json:"sleep_hours,omitempty"`
	HoursSinceWake *float64 `json:"hours_since_wake,omitempty"`
}

type FatigueResult struct {
	Level          FatigueLevel `json:"level"`
	Recommendation string       `json:"recommendation,omitempty"`
}

// DataSourceBreakdown records what went into a fused score. BiometricScore
// is nil on phone-only cycles.
type DataSourceBreakdown struct {
	BiometricScore    *float64     `json:"biometric_score,omitempty"`
	BehavioralScore   float64      `json:"behavioral_score"`
	ContextualScore   float64      `json:"contextual_score"`
	BiometricWeight   float64      `json:"biometric_weight"`
	BehavioralWeight  float64      `json:"behavioral_weight"`
	ContextualWeight  float64      `json:"contextual_weight"`
	FatigueLevel      FatigueLevel `json:"fatigue_level"`
	FatigueMultiplier float64      `json:"fatigue_multiplier"`
}

// UnifiedFlowAssessment is the final fused artifact of one cycle.
type UnifiedFlowAssessment struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Score           float64             `json:"score"`
	State           FlowState           `json:"state"`
	Confidence      FusedConfidence     `json:"confidence"`
	Breakdown       DataSourceBreakdown `json:"breakdown"`
	Recommendations []string            `json:"recommendations,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}
