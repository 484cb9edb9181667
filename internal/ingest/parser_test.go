package ingest

import (
	"testing"
)

func TestParseLineJSON(t *testing.T) {
	p := NewParser()
	line := `{"timestamp":"2026-02-10T09:30:00Z","user_id":"alice","hr":72,"ibi_ms":[800,810,790],"sleep_quality":0.8,"caffeine_mg":95,"source":"wearable"}`
	fields, err := p.ParseLine(line)
	if err != nil || fields == nil {
		t.Fatalf("parse failed: %v", err)
	}
	if fields.UserID != "alice" || fields.HeartRate != "72" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if len(fields.IBIms) != 3 || fields.IBIms[0] != 800 {
		t.Fatalf("ibi array not carried: %v", fields.IBIms)
	}
	if fields.SleepQuality != "0.8" || fields.CaffeineMg != "95" || fields.Source != "wearable" {
		t.Fatalf("optional fields not carried: %+v", fields)
	}
	if fields.Raw != line {
		t.Fatalf("raw line not preserved")
	}
}

func TestParseLinePlainKV(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("2026-02-10T09:30:00Z user=bob hr=68 rmssd=45.2 device=strap")
	if err != nil || fields == nil {
		t.Fatalf("parse failed: %v", err)
	}
	if fields.Timestamp != "2026-02-10T09:30:00Z" {
		t.Fatalf("timestamp not extracted: %q", fields.Timestamp)
	}
	if fields.UserID != "bob" || fields.HeartRate != "68" || fields.RMSSD != "45.2" || fields.Source != "strap" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}

func TestParseLineCSVWithHeader(t *testing.T) {
	p := NewParser()
	header, err := p.ParseLine("timestamp,user_id,heart_rate,rmssd,sleep_quality")
	if err != nil {
		t.Fatalf("header parse failed: %v", err)
	}
	if header != nil {
		t.Fatalf("header row must not yield fields")
	}
	fields, err := p.ParseLine("2026-02-10T09:30:00Z,carol,64,52.1,0.9")
	if err != nil || fields == nil {
		t.Fatalf("row parse failed: %v", err)
	}
	if fields.UserID != "carol" || fields.HeartRate != "64" || fields.RMSSD != "52.1" || fields.SleepQuality != "0.9" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}

func TestParseLineHeaderlessCSV(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("2026-02-10T09:30:00Z,dave,70,48.0,55.0")
	if err != nil || fields == nil {
		t.Fatalf("parse failed: %v", err)
	}
	if fields.UserID != "dave" || fields.SDNN != "55.0" {
		t.Fatalf("positional mapping wrong: %+v", fields)
	}
}

func TestParseLineEmpty(t *testing.T) {
	p := NewParser()
	fields, err := p.ParseLine("   ")
	if err != nil || fields != nil {
		t.Fatalf("empty line must yield nothing, got %+v err %v", fields, err)
	}
}

func TestParseJSONMapAliases(t *testing.T) {
	fields := ParseJSONMap(map[string]interface{}{
		"ts":           "1770716400",
		"uid":          "erin",
		"bpm":          77.0,
		"rr_intervals": []interface{}{780.0, 795.0},
		"sleep":        0.7,
		"theanine":     150.0,
	})
	if fields.Timestamp != "1770716400" || fields.UserID != "erin" || fields.HeartRate != "77" {
		t.Fatalf("alias mapping wrong: %+v", fields)
	}
	if len(fields.IBIms) != 2 {
		t.Fatalf("rr_intervals alias not mapped: %v", fields.IBIms)
	}
	if fields.TheanineMg != "150" {
		t.Fatalf("theanine alias not mapped: %q", fields.TheanineMg)
	}
}
