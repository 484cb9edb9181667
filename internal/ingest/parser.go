package ingest

import (
	"encoding/csv"
	"regexp"
	"strings"

	"flowsense/internal/normalize"
)

var (
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+-Z]+)`)
	reKV        = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)
)

// Parser turns a wire line into SampleFields. JSON objects are the common
// case; CSV covers batch exports and plain key=value lines cover debug
// feeds.
type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

func (p *Parser) ParseLine(line string) (*normalize.SampleFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := ParseJSONBytes([]byte(trim)); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	fields, err := parsePlain(trim)
	if err != nil {
		return nil, err
	}
	fields.Raw = line
	return fields, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parsePlain(line string) (*normalize.SampleFields, error) {
	fields := &normalize.SampleFields{Extras: map[string]string{}}
	ts, _ := extractTimestamp(line)
	fields.Timestamp = ts

	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(line, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	fields.UserID = firstNonEmpty(kv, "user_id", "user", "uid", "subject")
	fields.HeartRate = firstNonEmpty(kv, "heart_rate", "hr", "bpm")
	fields.RMSSD = firstNonEmpty(kv, "rmssd", "rmssd_ms")
	fields.SDNN = firstNonEmpty(kv, "sdnn", "sdnn_ms")
	fields.SleepQuality = firstNonEmpty(kv, "sleep_quality", "sleep")
	fields.CaffeineMg = firstNonEmpty(kv, "caffeine_mg", "caffeine")
	fields.TheanineMg = firstNonEmpty(kv, "theanine_mg", "theanine")
	fields.Source = firstNonEmpty(kv, "source", "device")
	if fields.Timestamp == "" {
		fields.Timestamp = firstNonEmpty(kv, "timestamp", "time", "ts")
	}
	for k, v := range kv {
		fields.Extras[k] = v
	}
	return fields, nil
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		ts := strings.TrimSpace(line[m[2]:m[3]])
		rest := strings.TrimSpace(line[m[3]:])
		return ts, rest
	}
	return "", line
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

// CSVParser handles batch exports. The first header row fixes the column
// order; headerless files fall back to the conventional
// timestamp,user_id,heart_rate,rmssd,sdnn layout.
type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(line string) (*normalize.SampleFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	fields := &normalize.SampleFields{Extras: map[string]string{}}
	if p.header != nil {
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			assignField(fields, name, record[i])
		}
	} else {
		if len(record) >= 1 {
			fields.Timestamp = record[0]
		}
		if len(record) >= 2 {
			fields.UserID = record[1]
		}
		if len(record) >= 3 {
			fields.HeartRate = record[2]
		}
		if len(record) >= 4 {
			fields.RMSSD = record[3]
		}
		if len(record) >= 5 {
			fields.SDNN = record[4]
		}
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		v = strings.ToLower(strings.TrimSpace(v))
		switch v {
		case "timestamp", "time", "ts", "user_id", "user", "heart_rate", "hr", "rmssd", "sdnn", "sleep_quality":
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func assignField(fields *normalize.SampleFields, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	switch name {
	case "timestamp", "time", "ts":
		fields.Timestamp = value
	case "user_id", "user", "uid", "subject":
		fields.UserID = value
	case "heart_rate", "hr", "bpm":
		fields.HeartRate = value
	case "rmssd", "rmssd_ms":
		fields.RMSSD = value
	case "sdnn", "sdnn_ms":
		fields.SDNN = value
	case "sleep_quality", "sleep":
		fields.SleepQuality = value
	case "caffeine_mg", "caffeine":
		fields.CaffeineMg = value
	case "theanine_mg", "theanine":
		fields.TheanineMg = value
	case "source", "device":
		fields.Source = value
	default:
		if fields.Extras != nil {
			fields.Extras[name] = value
		}
	}
}
