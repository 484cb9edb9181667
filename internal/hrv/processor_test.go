package hrv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"flowsense/internal/config"
	"flowsense/internal/model"
)

func testProcessor() *Processor {
	return NewProcessor(config.DefaultConfig().HRV)
}

func steadyIntervals(n int, ms float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = ms
	}
	return out
}

func TestComputeSteadyRhythm(t *testing.T) {
	p := testProcessor()
	m := p.Compute(steadyIntervals(90, 800), time.Now())

	require.True(t, m.IsValid)
	require.Equal(t, model.ProvenanceMeasured, m.Provenance)
	require.InDelta(t, 0, m.RMSSD, 1e-9)
	require.NotNil(t, m.SDNN)
	require.InDelta(t, 0, *m.SDNN, 1e-9)
	require.InDelta(t, 0, m.ArtifactPct, 1e-9)
	// 90 beats at 800 ms span 72 s, enough for the spectral branch.
	require.NotNil(t, m.LFPower)
	require.NotNil(t, m.HFPower)
}

func TestComputeAlternatingRMSSD(t *testing.T) {
	p := testProcessor()
	intervals := make([]float64, 80)
	for i := range intervals {
		if i%2 == 0 {
			intervals[i] = 760
		} else {
			intervals[i] = 840
		}
	}
	m := p.Compute(intervals, time.Now())
	require.True(t, m.IsValid)
	// Every successive difference is 80 ms.
	require.InDelta(t, 80, m.RMSSD, 1e-9)
}

func TestComputeRejectsArtifacts(t *testing.T) {
	p := testProcessor()
	intervals := steadyIntervals(40, 800)
	intervals[5] = 90    // below plausible range
	intervals[20] = 2600 // above plausible range
	m := p.Compute(intervals, time.Now())

	require.Greater(t, m.ArtifactPct, 0.0)
	require.InDelta(t, 2.0/40.0, m.ArtifactPct, 1e-9)
	require.True(t, m.IsValid)
}

func TestComputeInvalidWhenTooNoisy(t *testing.T) {
	p := testProcessor()
	intervals := steadyIntervals(40, 800)
	for i := 0; i < 12; i++ {
		intervals[i*3] = 100
	}
	m := p.Compute(intervals, time.Now())
	require.False(t, m.IsValid)
	require.Greater(t, m.ArtifactPct, 0.2)
}

func TestComputeInvalidWhenTooFewSamples(t *testing.T) {
	p := testProcessor()
	m := p.Compute(steadyIntervals(10, 800), time.Now())
	require.False(t, m.IsValid)
	require.Nil(t, m.LFPower)
}

func TestComputeEmptyInput(t *testing.T) {
	p := testProcessor()
	m := p.Compute(nil, time.Now())
	require.False(t, m.IsValid)
	require.InDelta(t, 1.0, m.ArtifactPct, 1e-9)
}

func TestEstimateFromSDNN(t *testing.T) {
	p := testProcessor()
	m := p.EstimateFromSDNN(50, time.Now())

	require.Equal(t, model.ProvenanceEstimated, m.Provenance)
	require.True(t, m.IsValid)
	require.InDelta(t, 70, m.RMSSD, 1e-9)
	require.NotNil(t, m.SDNN)
	require.Nil(t, m.LFPower)
}

func TestEstimateFromSDNNRejectsNonPositive(t *testing.T) {
	p := testProcessor()
	m := p.EstimateFromSDNN(0, time.Now())
	require.False(t, m.IsValid)
}

func TestWindowEviction(t *testing.T) {
	w := NewWindow(60 * time.Second)
	base := time.Now()
	for i := 0; i < 100; i++ {
		w.Add(IBIEntry{Timestamp: base.Add(time.Duration(i) * time.Second), IntervalMs: 800})
	}
	require.Equal(t, 100, w.Len())

	w.Evict(base.Add(70 * time.Second))
	require.Equal(t, 30, w.Len())
	require.Len(t, w.Intervals(), 30)

	w.Clear()
	require.Equal(t, 0, w.Len())
}
