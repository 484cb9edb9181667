package normalize

import (
	"strings"
	"testing"
	"time"

	"flowsense/internal/config"
)

func TestNormalizeBasicSample(t *testing.T) {
	cfg := config.DefaultConfig()
	s, err := Normalize(SampleFields{
		Timestamp:    "2026-02-10T09:30:00Z",
		UserID:       "user1",
		HeartRate:    "72",
		IBIms:        []float64{800, 810, 790},
		SleepQuality: "0.8",
		CaffeineMg:   "95",
		Source:       "wearable",
	}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.UserID != "user1" || s.HeartRate != 72 || len(s.IBIms) != 3 {
		t.Fatalf("unexpected sample: %+v", s)
	}
	if s.SleepQuality == nil || *s.SleepQuality != 0.8 {
		t.Fatalf("sleep quality not carried")
	}
	if s.CaffeineMg != 95 {
		t.Fatalf("caffeine not carried: %v", s.CaffeineMg)
	}
	want := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	if !s.Timestamp.Equal(want) {
		t.Fatalf("timestamp %v, want %v", s.Timestamp, want)
	}
}

func TestNormalizeDefaultsUser(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.Parser.DefaultUserID = "default"
	s, err := Normalize(SampleFields{HeartRate: "70"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.UserID != "default" {
		t.Fatalf("expected default user, got %q", s.UserID)
	}
}

func TestNormalizeRejectsMissingUser(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.Parser.DefaultUserID = ""
	if _, err := Normalize(SampleFields{HeartRate: "70"}, cfg); err == nil {
		t.Fatalf("expected error for missing user")
	}
}

func TestNormalizeRejectsImplausibleHeartRate(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, hr := range []string{"10", "300"} {
		if _, err := Normalize(SampleFields{UserID: "u", HeartRate: hr}, cfg); err == nil {
			t.Fatalf("expected error for heart rate %s", hr)
		}
	}
	if _, err := Normalize(SampleFields{UserID: "u", HeartRate: "25"}, cfg); err != nil {
		t.Fatalf("boundary heart rate must pass: %v", err)
	}
}

func TestNormalizeClampsSleepQuality(t *testing.T) {
	cfg := config.DefaultConfig()
	s, err := Normalize(SampleFields{UserID: "u", SleepQuality: "1.6"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SleepQuality == nil || *s.SleepQuality != 1.0 {
		t.Fatalf("expected sleep clamp to 1.0, got %+v", s.SleepQuality)
	}
}

func TestNormalizeClampsFutureTimestamp(t *testing.T) {
	cfg := config.DefaultConfig()
	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	s, err := Normalize(SampleFields{UserID: "u", Timestamp: future}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Timestamp.After(time.Now().UTC().Add(time.Minute)) {
		t.Fatalf("future timestamp not clamped: %v", s.Timestamp)
	}
}

func TestNormalizeBadTimestamp(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := Normalize(SampleFields{UserID: "u", Timestamp: "not-a-time"}, cfg)
	if err == nil || !strings.Contains(err.Error(), "parse timestamp") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseTimestampFormats(t *testing.T) {
	cases := []string{
		"2026-02-10T09:30:00Z",
		"2026-02-10 09:30:00",
		"2026-02-10T09:30:00",
		"1770716400",
		"1770716400000",
	}
	for _, v := range cases {
		if _, err := ParseTimestamp(v, time.UTC); err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", v, err)
		}
	}
	if _, err := ParseTimestamp("", time.UTC); err == nil {
		t.Fatalf("empty timestamp must fail")
	}
}

func TestNormalizeUnknownSource(t *testing.T) {
	cfg := config.DefaultConfig()
	s, err := Normalize(SampleFields{UserID: "u"}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Source != "unknown" {
		t.Fatalf("expected unknown source, got %q", s.Source)
	}
}
