package fusion

import (
	"flowsense/internal/model"
)

const maxRecommendations = 4

// recommendations builds the state-specific primary message plus up to
// three supplements, deduplicated.
func (e *Engine) recommendations(state model.FlowState, bioRes *model.BiometricFlowResult, behRes model.BehavioralResult, fatRes model.FatigueResult, in CycleInput) []string {
	out := make([]string, 0, maxRecommendations)
	seen := make(map[string]bool)
	add := func(msg string) {
		if msg == "" || seen[msg] || len(out) >= maxRecommendations {
			return
		}
		seen[msg] = true
		out = append(out, msg)
	}

	add(primaryMessage(state))

	if bioRes == nil {
		add("No heart data this session. Wearing your device sharpens these estimates.")
	} else {
		if bioRes.Breakdown.Parasympathetic < 0.4 {
			add("Recovery tone is low. Slow breathing for two minutes can bring it back.")
		}
		if bioRes.Breakdown.HeartRateZone < 0.4 {
			add("Heart rate is outside your focus zone. Settle in before tackling hard work.")
		}
	}
	if in.SleepQuality == nil {
		add("Log last night's sleep to improve today's readiness estimate.")
	}
	for i, rec := range behRes.Recommendations {
		if i >= 2 {
			break
		}
		add(rec)
	}
	if fatigueAtLeast(fatRes.Level, model.FatigueModerate) {
		add(fatRes.Recommendation)
	}
	return out
}

func primaryMessage(state model.FlowState) string {
	switch state {
	case model.StateDeepFlow:
		return "You're in deep flow. Guard this block; silence everything."
	case model.StateLightFlow:
		return "You're in flow. Stay with the current task."
	case model.StatePreFlow:
		return "Focus is building. One clear goal and no tab-switching."
	case model.StateOverload:
		return "You're over-aroused. Step back for a short reset before continuing."
	case model.StateRecovering:
		return "You're running on empty. Recovery now beats pushing through."
	default:
		return "You're near baseline. A deliberate warm-up task can start the climb."
	}
}

var fatigueRank = map[model.FatigueLevel]int{
	model.FatigueFresh:    0,
	model.FatigueMild:     1,
	model.FatigueModerate: 2,
	model.FatigueHigh:     3,
	model.FatigueSevere:   4,
}

func fatigueAtLeast(level, floor model.FatigueLevel) bool {
	return fatigueRank[level] >= fatigueRank[floor]
}
