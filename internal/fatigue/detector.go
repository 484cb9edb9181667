package fatigue

import "flowsense/internal/model"

// Detector derives a discrete fatigue level from session duration and
// optional sleep context. Reference implementation of the fatigue
// collaborator; levels only ever worsen with added evidence.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

var levelOrder = []model.FatigueLevel{
	model.FatigueFresh,
	model.FatigueMild,
	model.FatigueModerate,
	model.FatigueHigh,
	model.FatigueSevere,
}

func (d *Detector) Detect(in model.FatigueInput) model.FatigueResult {
	idx := durationLevel(in.SessionMinutes)
	if in.SessionsToday >= 5 {
		idx++
	}
	if in.SleepHours != nil && *in.SleepHours > 0 && *in.SleepHours < 6 {
		idx++
	}
	if in.HoursSinceWake != nil && *in.HoursSinceWake > 16 {
		idx++
	}
	if idx >= len(levelOrder) {
		idx = len(levelOrder) - 1
	}
	level := levelOrder[idx]
	return model.FatigueResult{Level: level, Recommendation: recommendation(level)}
}

func durationLevel(minutes float64) int {
	switch {
	case minutes < 60:
		return 0
	case minutes < 105:
		return 1
	case minutes < 150:
		return 2
	case minutes < 210:
		return 3
	default:
		return 4
	}
}

func recommendation(level model.FatigueLevel) string {
	switch level {
	case model.FatigueMild:
		return "Mild fatigue. Stand up and stretch between tasks."
	case model.FatigueModerate:
		return "Moderate fatigue. Take a 10-minute break before the next block."
	case model.FatigueHigh:
		return "High fatigue. Wrap up soon; output quality is dropping."
	case model.FatigueSevere:
		return "Severe fatigue. Stop and rest; continuing now is counterproductive."
	default:
		return ""
	}
}
