package biometric

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flowsense/internal/baseline"
	"flowsense/internal/config"
	"flowsense/internal/model"
)

func testScorer() *Scorer {
	return NewScorer(config.DefaultConfig().Biometric)
}

func testBaseline() *baseline.Store {
	cfg := config.DefaultConfig().Baseline
	bl := baseline.New(cfg, "user1")
	b := bl.Baseline()
	b.RestingRMSSD = 50
	b.RestingHR = 65
	b.LFPercentiles = []float64{300, 600, 1100, 1900, 3000}
	b.IsCalibrated = true
	b.DaysOfData = 20
	b.LastUpdated = time.Now()
	return bl
}

func lfInput(rmssd, hr, lf float64) Input {
	return Input{
		HRV: model.HRVMetrics{
			RMSSD:      rmssd,
			LFPower:    &lf,
			IsValid:    true,
			Provenance: model.ProvenanceMeasured,
		},
		HeartRate: hr,
	}
}

func TestOptimalArousalScenario(t *testing.T) {
	s := testScorer()
	bl := testBaseline()

	// RMSSD 70 vs resting 50 caps parasympathetic at 1.0; HR ratio ~1.31
	// lands in the decay branch; LF at the personal median is optimal.
	res := s.Evaluate(lfInput(70, 85, 1100), bl, time.Now())

	require.InDelta(t, 1.0, res.Breakdown.Parasympathetic, 1e-9)
	require.InDelta(t, 0.5, res.Breakdown.HeartRateZone, 1e-9)
	require.GreaterOrEqual(t, res.Breakdown.Sympathetic, 0.9)
	require.InDelta(t, 0.50, res.SympatheticPercentile, 1e-9)
	require.GreaterOrEqual(t, res.Score, 75.0)
	require.LessOrEqual(t, res.Score, 92.0)
}

func TestOverloadOverridesScore(t *testing.T) {
	s := testScorer()
	bl := testBaseline()

	// LF above the 90th percentile forces Overload even with favorable
	// parasympathetic and HR sub-scores.
	res := s.Evaluate(lfInput(70, 78, 5000), bl, time.Now())
	require.InDelta(t, 0.95, res.SympatheticPercentile, 1e-9)
	require.Equal(t, model.StateOverload, res.State)
}

func TestBoredomRequiresBothConditions(t *testing.T) {
	s := testScorer()
	bl := testBaseline()

	// Very low LF with strong parasympathetic tone.
	res := s.Evaluate(lfInput(70, 66, 100), bl, time.Now())
	require.Equal(t, model.StateBoredom, res.State)

	// Same LF but weak parasympathetic tone: not boredom.
	res = s.Evaluate(lfInput(20, 66, 100), bl, time.Now())
	require.NotEqual(t, model.StateBoredom, res.State)
}

func TestFlowRequiresPersistence(t *testing.T) {
	s := testScorer()
	bl := testBaseline()
	in := lfInput(70, 80, 1100)

	// First strong reading: no flow history yet, so only PreFlow.
	res := s.Evaluate(in, bl, time.Now())
	require.GreaterOrEqual(t, res.Score, 80.0)
	require.Equal(t, model.StatePreFlow, res.State)
	s.Commit(res)

	// PreFlow in the last 2 readings unlocks LightFlow.
	res = s.Evaluate(in, bl, time.Now())
	require.Equal(t, model.StateLightFlow, res.State)
	s.Commit(res)

	// Still only one flow state in the last 3: LightFlow again.
	res = s.Evaluate(in, bl, time.Now())
	require.Equal(t, model.StateLightFlow, res.State)
	s.Commit(res)

	// Two of the last three were flow states: DeepFlow unlocks.
	res = s.Evaluate(in, bl, time.Now())
	require.Equal(t, model.StateDeepFlow, res.State)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	s := testScorer()
	bl := testBaseline()
	in := lfInput(55, 74, 900)
	now := time.Now()

	first := s.Evaluate(in, bl, now)
	second := s.Evaluate(in, bl, now)
	require.Equal(t, first.Score, second.Score)
	require.Equal(t, first.State, second.State)
	require.Equal(t, first.Breakdown, second.Breakdown)
}

func TestSubScoresStayInBounds(t *testing.T) {
	s := testScorer()
	bl := testBaseline()
	cases := []Input{
		lfInput(0, 0, 0),
		lfInput(5, 300, 1),
		lfInput(250, 30, 100000),
		lfInput(70, 85, 1100),
		{HRV: model.HRVMetrics{RMSSD: 40, IsValid: false, ArtifactPct: 0.9}, HeartRate: -10},
	}
	for _, in := range cases {
		res := s.Evaluate(in, bl, time.Now())
		for _, sub := range []float64{
			res.Breakdown.Parasympathetic,
			res.Breakdown.Sympathetic,
			res.Breakdown.HeartRateZone,
			res.Breakdown.SleepReadiness,
			res.Breakdown.SignalQuality,
		} {
			require.GreaterOrEqual(t, sub, 0.0)
			require.LessOrEqual(t, sub, 1.0)
		}
		require.GreaterOrEqual(t, res.Score, 0.0)
		require.LessOrEqual(t, res.Score, 100.0)
	}
}

func TestHeartRateZoneBranches(t *testing.T) {
	require.InDelta(t, 0.3, heartRateZoneScore(20, 65), 1e-9)  // low floor
	require.InDelta(t, 0.7, heartRateZoneScore(65, 65), 1e-9)  // at resting
	require.InDelta(t, 0.85, heartRateZoneScore(68.25, 65), 1e-9)
	require.InDelta(t, 1.0, heartRateZoneScore(78, 65), 1e-9)  // optimal band
	require.InDelta(t, 0.5, heartRateZoneScore(88, 65), 1e-9)  // decay band
	require.InDelta(t, 0.2, heartRateZoneScore(120, 65), 1e-9) // stress zone
	require.InDelta(t, 0.5, heartRateZoneScore(80, 0), 1e-9)   // guard
}

func TestParasympatheticCurve(t *testing.T) {
	require.InDelta(t, 0.2, parasympatheticScore(20, 50), 1e-9)
	require.InDelta(t, 0.35, parasympatheticScore(32.5, 50), 1e-9)
	require.InDelta(t, 0.65, parasympatheticScore(45, 50), 1e-9)
	require.InDelta(t, 0.9, parasympatheticScore(55, 50), 1e-9)
	require.InDelta(t, 1.0, parasympatheticScore(70, 50), 1e-9)
	require.InDelta(t, 0.5, parasympatheticScore(50, 0), 1e-9) // guard
}

func TestEstimatedLFFromTimeDomain(t *testing.T) {
	s := testScorer()
	bl := testBaseline()
	sdnn := 60.0
	in := Input{
		HRV: model.HRVMetrics{
			RMSSD:      40,
			SDNN:       &sdnn,
			IsValid:    true,
			Provenance: model.ProvenanceMeasured,
		},
		HeartRate: 75,
	}
	// SDNN^2 - RMSSD^2 = 2000, between the 75th and 90th points.
	res := s.Evaluate(in, bl, time.Now())
	require.Greater(t, res.SympatheticPercentile, 0.75)
	require.Less(t, res.SympatheticPercentile, 0.90)
}

func TestConfidenceLadder(t *testing.T) {
	s := testScorer()
	now := time.Now()

	bl := testBaseline()
	bl.Baseline().IsCalibrated = false
	res := s.Evaluate(lfInput(50, 70, 1100), bl, now)
	require.Equal(t, model.ConfidenceLow, res.Confidence)

	bl = testBaseline()
	res = s.Evaluate(lfInput(50, 70, 1100), bl, now)
	require.Equal(t, model.ConfidenceHigh, res.Confidence)

	in := lfInput(50, 70, 1100)
	in.HRV.ArtifactPct = 0.05
	res = s.Evaluate(in, bl, now)
	require.Equal(t, model.ConfidenceMedium, res.Confidence)

	bl.Baseline().LastUpdated = now.AddDate(0, 0, -8)
	res = s.Evaluate(lfInput(50, 70, 1100), bl, now)
	require.Equal(t, model.ConfidenceMedium, res.Confidence)

	bl.Baseline().LastUpdated = now.AddDate(0, 0, -20)
	res = s.Evaluate(lfInput(50, 70, 1100), bl, now)
	require.Equal(t, model.ConfidenceLow, res.Confidence)
}

func TestResetClearsHistory(t *testing.T) {
	s := testScorer()
	bl := testBaseline()
	in := lfInput(70, 80, 1100)

	s.Commit(s.Evaluate(in, bl, time.Now()))
	s.Commit(s.Evaluate(in, bl, time.Now()))
	s.Reset()

	res := s.Evaluate(in, bl, time.Now())
	require.Equal(t, model.StatePreFlow, res.State)
	require.Empty(t, res.RecentStates)
}
