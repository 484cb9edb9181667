package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flowsense/internal/config"
	"flowsense/internal/model"
)

// Physiological plausibility bounds for heart rate. Readings outside are
// sensor glitches, not people.
const (
	minPlausibleHR = 25
	maxPlausibleHR = 250
)

// SampleFields holds the still-stringly fields extracted by the ingest
// parsers before validation. IBIms is already numeric because every wire
// format carries it as an array.
type SampleFields struct {
	Timestamp    string
	UserID       string
	HeartRate    string
	IBIms        []float64
	RMSSD        string
	SDNN         string
	SleepQuality string
	CaffeineMg   string
	TheanineMg   string
	Source       string
	Extras       map[string]string
	Raw          string
}

// Normalize validates raw fields into a model.Sample: defaults the user,
// parses and skew-clamps the timestamp, and drops implausible heart rates.
func Normalize(fields SampleFields, cfg *config.Config) (model.Sample, error) {
	user := strings.TrimSpace(fields.UserID)
	if user == "" {
		user = cfg.Ingest.Parser.DefaultUserID
	}
	if user == "" {
		return model.Sample{}, errors.New("sample has no user id")
	}

	loc := time.UTC
	if cfg.Ingest.Parser.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Parser.Timezone); err == nil {
			loc = l
		}
	}

	now := time.Now().UTC()
	ts := now
	if fields.Timestamp != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			return model.Sample{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = clampTimestamp(parsed.UTC(), now, cfg.Fusion.MaxFutureSkew)
	}

	hr := parseOptionalFloat(fields.HeartRate)
	var heartRate float64
	if hr != nil {
		if *hr < minPlausibleHR || *hr > maxPlausibleHR {
			return model.Sample{}, fmt.Errorf("implausible heart rate %.1f", *hr)
		}
		heartRate = *hr
	}

	sleep := parseOptionalFloat(fields.SleepQuality)
	if sleep != nil {
		v := clamp01(*sleep)
		sleep = &v
	}

	source := strings.TrimSpace(fields.Source)
	if source == "" {
		source = "unknown"
	}

	return model.Sample{
		UserID:       user,
		HeartRate:    heartRate,
		IBIms:        fields.IBIms,
		RMSSD:        parseOptionalFloat(fields.RMSSD),
		SDNN:         parseOptionalFloat(fields.SDNN),
		SleepQuality: sleep,
		CaffeineMg:   parseFloatOrZero(fields.CaffeineMg),
		TheanineMg:   parseFloatOrZero(fields.TheanineMg),
		Source:       source,
		Timestamp:    ts,
		Raw:          fields.Raw,
	}, nil
}

// clampTimestamp pulls future-dated readings back to now once they exceed
// the allowed clock skew. Wearables with a drifted clock are common.
func clampTimestamp(ts, now time.Time, maxFuture time.Duration) time.Time {
	if maxFuture <= 0 {
		maxFuture = 2 * time.Minute
	}
	if ts.After(now.Add(maxFuture)) {
		return now
	}
	return ts
}

func parseOptionalFloat(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseFloatOrZero(value string) float64 {
	if f := parseOptionalFloat(value); f != nil {
		return *f
	}
	return 0
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

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
