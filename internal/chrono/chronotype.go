package chrono

import (
	"strings"

	"flowsense/internal/config"
	"flowsense/internal/model"
)

// Engine answers circadian questions for one chronotype from a compiled
// 24-hour multiplier table. Build it once per config and swap atomically on
// reload; lookups are read-only.
type Engine struct {
	chronotype model.Chronotype
	table      [24]float64
}

// Hours with a multiplier at or above this are "optimal hours".
const optimalThreshold = 1.05

// Built-in hour tables, multiplier range 0.75-1.10. Config may override
// individual hours per chronotype.
var builtinPeaks = map[model.Chronotype][]peak{
	model.ChronotypeEarlyBird:    {{6, 11, 1.10}, {12, 15, 0.95}, {16, 19, 0.90}, {20, 23, 0.80}},
	model.ChronotypeIntermediate: {{9, 13, 1.08}, {14, 15, 0.92}, {16, 18, 1.05}, {21, 23, 0.82}},
	model.ChronotypeNightOwl:     {{8, 11, 0.85}, {12, 15, 0.95}, {16, 22, 1.10}, {23, 23, 1.0}},
}

type peak struct {
	from, to int
	mult     float64
}

func Build(cfg config.ChronotypeConfig, ct model.Chronotype) *Engine {
	if ct == "" {
		ct = ParseChronotype(cfg.Default)
	}
	e := &Engine{chronotype: ct}
	for h := 0; h < 24; h++ {
		e.table[h] = 0.85 // off-peak default, incl. night hours
	}
	for _, p := range builtinPeaks[ct] {
		for h := p.from; h <= p.to && h < 24; h++ {
			e.table[h] = p.mult
		}
	}
	// Deep night is a poor bet for every chronotype except owls late on.
	for h := 0; h < 6; h++ {
		if ct != model.ChronotypeNightOwl || h > 1 {
			e.table[h] = 0.75
		}
	}
	if overrides, ok := cfg.Multipliers[string(ct)]; ok {
		for h, m := range overrides {
			if h >= 0 && h < 24 && m > 0 {
				e.table[h] = clampMult(m)
			}
		}
	}
	return e
}

func (e *Engine) Chronotype() model.Chronotype {
	return e.chronotype
}

// Multiplier returns the circadian multiplier for an hour, nominal range
// 0.75-1.10.
func (e *Engine) Multiplier(hour int) float64 {
	if hour < 0 || hour > 23 {
		return 1.0
	}
	return e.table[hour]
}

func (e *Engine) IsOptimalHour(hour int) bool {
	return e.Multiplier(hour) >= optimalThreshold
}

func ParseChronotype(s string) model.Chronotype {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "early_bird", "early", "lark":
		return model.ChronotypeEarlyBird
	case "night_owl", "owl", "late":
		return model.ChronotypeNightOwl
	default:
		return model.ChronotypeIntermediate
	}
}

func clampMult(m float64) float64 {
	if m < 0.75 {
		return 0.75
	}
	if m > 1.10 {
		return 1.10
	}
	return m
}
