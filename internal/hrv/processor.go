package hrv

import (
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"flowsense/internal/config"
	"flowsense/internal/model"
)

// Standard HRV frequency bands, Hz.
const (
	lfLow  = 0.04
	lfHigh = 0.15
	hfHigh = 0.40
)

// sdnnToRMSSD is the empirical resting-state ratio used when only SDNN is
// available. Metrics built from it carry ProvenanceEstimated.
const sdnnToRMSSD = 1.4

type Processor struct {
	cfg config.HRVConfig
}

func NewProcessor(cfg config.HRVConfig) *Processor {
	return &Processor{cfg: cfg}
}

// Compute turns an ordered run of inter-beat intervals (ms) into an
// HRVMetrics snapshot. Implausible intervals are rejected as artifacts and
// inflate ArtifactPct; spectral powers are computed only when the clean
// span covers the configured minimum.
func (p *Processor) Compute(intervals []float64, ts time.Time) model.HRVMetrics {
	m := model.HRVMetrics{
		Provenance:  model.ProvenanceMeasured,
		SampleCount: len(intervals),
		Timestamp:   ts,
	}
	if len(intervals) == 0 {
		m.ArtifactPct = 1
		return m
	}

	clean := make([]float64, 0, len(intervals))
	artifacts := 0
	var prev float64
	for _, ibi := range intervals {
		if ibi < p.cfg.MinIBIms || ibi > p.cfg.MaxIBIms {
			artifacts++
			continue
		}
		if len(clean) > 0 && math.Abs(ibi-prev) > p.cfg.MaxSuccessiveJump {
			artifacts++
			continue
		}
		clean = append(clean, ibi)
		prev = ibi
	}

	m.ArtifactPct = clamp01(float64(artifacts) / float64(len(intervals)))
	m.IsValid = len(clean) >= p.cfg.MinSamples && m.ArtifactPct <= p.cfg.MaxArtifactPct

	if len(clean) >= 2 {
		m.RMSSD = rmssd(clean)
		sdnn := stat.StdDev(clean, nil)
		m.SDNN = &sdnn
	} else if len(clean) == 1 {
		m.RMSSD = 0
	}

	spanSec := sum(clean) / 1000.0
	m.WindowSec = spanSec
	if m.IsValid && spanSec >= p.cfg.SpectralMinSeconds {
		lf, hf := p.spectralPower(clean)
		m.LFPower = &lf
		m.HFPower = &hf
	}
	return m
}

// EstimateFromSDNN builds a degraded snapshot from a device-reported SDNN
// when no beat-level data is available. RMSSD here is an approximation
// (SDNN x 1.4 at rest), never a measurement.
func (p *Processor) EstimateFromSDNN(sdnn float64, ts time.Time) model.HRVMetrics {
	m := model.HRVMetrics{
		Provenance: model.ProvenanceEstimated,
		Timestamp:  ts,
	}
	if sdnn <= 0 {
		m.ArtifactPct = 1
		return m
	}
	m.RMSSD = sdnn * sdnnToRMSSD
	s := sdnn
	m.SDNN = &s
	m.IsValid = true
	return m
}

func rmssd(intervals []float64) float64 {
	var sumSq float64
	n := 0
	for i := 1; i < len(intervals); i++ {
		d := intervals[i] - intervals[i-1]
		sumSq += d * d
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

// spectralPower integrates the LF and HF bands of the RR tachogram.
// The unevenly spaced series is resampled at the configured rate by linear
// interpolation, de-meaned, and transformed with a real FFT.
func (p *Processor) spectralPower(intervals []float64) (lf, hf float64) {
	fs := p.cfg.ResampleHz
	// Beat times in seconds, value at each beat = the interval itself.
	times := make([]float64, len(intervals))
	var t float64
	for i, ibi := range intervals {
		t += ibi / 1000.0
		times[i] = t
	}
	span := times[len(times)-1] - times[0]
	n := int(span * fs)
	if n < 16 {
		return 0, 0
	}

	xs := make([]float64, n)
	j := 0
	for i := 0; i < n; i++ {
		at := times[0] + float64(i)/fs
		for j < len(times)-2 && times[j+1] < at {
			j++
		}
		t0, t1 := times[j], times[j+1]
		v0, v1 := intervals[j], intervals[j+1]
		if t1 == t0 {
			xs[i] = v0
			continue
		}
		frac := (at - t0) / (t1 - t0)
		xs[i] = v0 + frac*(v1-v0)
	}

	mean := stat.Mean(xs, nil)
	for i := range xs {
		xs[i] -= mean
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, xs)
	df := fs / float64(n)
	for k := 1; k < len(coeffs); k++ {
		freq := float64(k) * df
		if freq < lfLow {
			continue
		}
		if freq >= hfHigh {
			break
		}
		// One-sided PSD in ms^2/Hz, integrated per bin.
		psd := 2 * cmplx.Abs(coeffs[k]) * cmplx.Abs(coeffs[k]) / (float64(n) * fs)
		power := psd * df
		if freq < lfHigh {
			lf += power
		} else {
			hf += power
		}
	}
	return lf, hf
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
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
