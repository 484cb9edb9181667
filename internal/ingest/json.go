package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"flowsense/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.SampleFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

// ParseJSONMap maps loosely-keyed wearable payloads onto SampleFields.
// The ibi_ms array stays numeric; everything else is stringly until
// normalize validates it.
func ParseJSONMap(obj map[string]interface{}) *normalize.SampleFields {
	fields := &normalize.SampleFields{Extras: map[string]string{}}
	for key, val := range obj {
		lower := strings.ToLower(key)
		if lower == "ibi_ms" || lower == "ibi" || lower == "rr_intervals" {
			fields.IBIms = toFloatSlice(val)
			continue
		}
		fields.Extras[lower] = fmt.Sprint(val)
	}
	fields.Timestamp = firstNonEmpty(fields.Extras, "timestamp", "time", "ts")
	fields.UserID = firstNonEmpty(fields.Extras, "user_id", "user", "uid", "subject")
	fields.HeartRate = firstNonEmpty(fields.Extras, "heart_rate", "hr", "bpm")
	fields.RMSSD = firstNonEmpty(fields.Extras, "rmssd", "rmssd_ms")
	fields.SDNN = firstNonEmpty(fields.Extras, "sdnn", "sdnn_ms")
	fields.SleepQuality = firstNonEmpty(fields.Extras, "sleep_quality", "sleep")
	fields.CaffeineMg = firstNonEmpty(fields.Extras, "caffeine_mg", "caffeine")
	fields.TheanineMg = firstNonEmpty(fields.Extras, "theanine_mg", "theanine")
	fields.Source = firstNonEmpty(fields.Extras, "source", "device")
	return fields
}

func toFloatSlice(val interface{}) []float64 {
	list, ok := val.([]interface{})
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(list))
	for _, v := range list {
		if f, ok := v.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}
