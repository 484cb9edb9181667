package baseline

import (
	"math"
	"time"

	"flowsense/internal/config"
	"flowsense/internal/model"
)

// Percentile ranks of the five stored distribution points
// (10th/25th/50th/75th/90th). Values at or beyond the extremes clamp to
// 0.05/0.95 instead of extrapolating.
var pointRanks = [5]float64{0.10, 0.25, 0.50, 0.75, 0.90}

// Population defaults used until a user's own distribution takes over.
var (
	defaultRMSSDPercentiles = []float64{25, 32, 42, 55, 70}
	defaultLFPercentiles    = []float64{300, 600, 1100, 1900, 3000}
)

// Store maintains one user's rolling biometric profile. It owns no
// persistence; callers load and save the wrapped BiometricBaseline through
// the storage hooks.
type Store struct {
	cfg config.BaselineConfig
	b   model.BiometricBaseline
}

func New(cfg config.BaselineConfig, userID string) *Store {
	return &Store{
		cfg: cfg,
		b: model.BiometricBaseline{
			UserID:              userID,
			RestingRMSSD:        cfg.DefaultRestingRMSSD,
			RestingHR:           cfg.DefaultRestingHR,
			RestingLFPower:      defaultLFPercentiles[2],
			RestingHFPower:      800,
			LFPercentiles:       append([]float64{}, defaultLFPercentiles...),
			RMSSDPercentiles:    append([]float64{}, defaultRMSSDPercentiles...),
			CircadianMultiplier: make(map[int]float64),
			AvgSleepQuality:     cfg.DefaultSleepQuality,
			AvgSleepHours:       7,
		},
	}
}

// NewFromBaseline wraps a previously persisted baseline.
func NewFromBaseline(cfg config.BaselineConfig, b model.BiometricBaseline) *Store {
	if b.CircadianMultiplier == nil {
		b.CircadianMultiplier = make(map[int]float64)
	}
	if b.RestingRMSSD <= 0 {
		b.RestingRMSSD = cfg.DefaultRestingRMSSD
	}
	if b.RestingHR <= 0 {
		b.RestingHR = cfg.DefaultRestingHR
	}
	return &Store{cfg: cfg, b: b}
}

// Snapshot returns a copy safe to hand to the persistence layer.
func (s *Store) Snapshot() model.BiometricBaseline {
	out := s.b
	out.LFPercentiles = append([]float64{}, s.b.LFPercentiles...)
	out.RMSSDPercentiles = append([]float64{}, s.b.RMSSDPercentiles...)
	out.CircadianMultiplier = make(map[int]float64, len(s.b.CircadianMultiplier))
	for h, m := range s.b.CircadianMultiplier {
		out.CircadianMultiplier[h] = m
	}
	return out
}

func (s *Store) Baseline() *model.BiometricBaseline {
	return &s.b
}

func (s *Store) IsCalibrated() bool {
	return s.b.IsCalibrated
}

// PercentileRank ranks value against a five-point distribution by
// piecewise-linear interpolation. Returns a neutral 0.5 when the
// distribution is not fully populated.
func PercentileRank(value float64, dist []float64) float64 {
	if len(dist) < 5 {
		return 0.5
	}
	if value <= dist[0] {
		return 0.05
	}
	if value >= dist[4] {
		return 0.95
	}
	for i := 0; i < 4; i++ {
		if value <= dist[i+1] {
			span := dist[i+1] - dist[i]
			if span <= 0 {
				return pointRanks[i+1]
			}
			frac := (value - dist[i]) / span
			return pointRanks[i] + frac*(pointRanks[i+1]-pointRanks[i])
		}
	}
	return 0.95
}

// UpdateWithReading folds one valid biometric reading into the baseline by
// exponential smoothing. DaysOfData advances once per UTC calendar day;
// calibration at the configured day count is irreversible.
func (s *Store) UpdateWithReading(hrv model.HRVMetrics, heartRate float64, sleepQuality *float64, now time.Time) {
	if !hrv.IsValid || hrv.RMSSD <= 0 {
		return
	}
	a := s.cfg.Alpha

	s.b.RMSSDStdDev = (1-a)*s.b.RMSSDStdDev + a*math.Abs(hrv.RMSSD-s.b.RestingRMSSD)
	s.b.RestingRMSSD = (1-a)*s.b.RestingRMSSD + a*hrv.RMSSD
	if heartRate > 0 {
		s.b.HRStdDev = (1-a)*s.b.HRStdDev + a*math.Abs(heartRate-s.b.RestingHR)
		s.b.RestingHR = (1-a)*s.b.RestingHR + a*heartRate
	}
	if hrv.LFPower != nil && *hrv.LFPower > 0 {
		s.b.RestingLFPower = (1-a)*s.b.RestingLFPower + a**hrv.LFPower
		s.updateDistribution(s.b.LFPercentiles, *hrv.LFPower)
	}
	if hrv.HFPower != nil && *hrv.HFPower > 0 {
		s.b.RestingHFPower = (1-a)*s.b.RestingHFPower + a**hrv.HFPower
	}
	if sleepQuality != nil {
		s.b.AvgSleepQuality = (1-a)*s.b.AvgSleepQuality + a*clamp01(*sleepQuality)
	}
	s.updateDistribution(s.b.RMSSDPercentiles, hrv.RMSSD)
	s.updateCircadian(now.UTC().Hour(), hrv.RMSSD)

	if s.b.LastUpdated.IsZero() || !sameDay(s.b.LastUpdated, now) {
		s.b.DaysOfData++
	}
	s.b.LastUpdated = now.UTC()
	if s.b.DaysOfData >= s.cfg.CalibrationDays {
		s.b.IsCalibrated = true
	}
}

// updateDistribution nudges each percentile point toward the reading with a
// rank-weighted step, then repairs monotonicity. A slow stochastic quantile
// tracker, not an exact estimator.
func (s *Store) updateDistribution(dist []float64, value float64) {
	if len(dist) != 5 {
		return
	}
	step := s.cfg.QuantileStep
	for i := range dist {
		if value > dist[i] {
			dist[i] += step * pointRanks[i] * (value - dist[i])
		} else {
			dist[i] -= step * (1 - pointRanks[i]) * (dist[i] - value)
		}
	}
	for i := 1; i < len(dist); i++ {
		if dist[i] < dist[i-1] {
			dist[i] = dist[i-1]
		}
	}
}

// CircadianAdjust normalizes a reading to its baseline-equivalent value by
// dividing out the learned multiplier for that hour.
func (s *Store) CircadianAdjust(value float64, hour int) float64 {
	mult := s.hourMultiplier(hour)
	if mult <= 0 {
		return value
	}
	return value / mult
}

func (s *Store) hourMultiplier(hour int) float64 {
	if m, ok := s.b.CircadianMultiplier[hour]; ok && m > 0 {
		return m
	}
	return 1.0
}

func (s *Store) updateCircadian(hour int, rmssd float64) {
	if s.b.RestingRMSSD <= 0 {
		return
	}
	ratio := rmssd / s.b.RestingRMSSD
	if ratio < 0.5 {
		ratio = 0.5
	}
	if ratio > 1.5 {
		ratio = 1.5
	}
	blend := s.cfg.CircadianBlend
	old := s.hourMultiplier(hour)
	s.b.CircadianMultiplier[hour] = (1-blend)*old + blend*ratio
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
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
