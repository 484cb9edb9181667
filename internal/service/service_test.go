package service

import (
	"testing"
	"time"

	"flowsense/internal/assessments"
	"flowsense/internal/config"
	"flowsense/internal/model"
)

func testService(cfg *config.Config) (*Service, *assessments.Store) {
	store := assessments.NewStore(100)
	return New(cfg, nil, store, nil), store
}

func rmssdSample(user string, rmssd float64, ts time.Time) model.Sample {
	return model.Sample{
		UserID:    user,
		HeartRate: 70,
		RMSSD:     &rmssd,
		Source:    "wearable",
		Timestamp: ts,
	}
}

func TestProcessSampleProducesAssessment(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, store := testService(cfg)

	a := svc.ProcessSample(rmssdSample("u1", 50, time.Now().UTC()))
	if a == nil {
		t.Fatalf("expected an assessment on first sample")
	}
	if a.UserID != "u1" || a.Score < 0 || a.Score > 100 {
		t.Fatalf("unexpected assessment: %+v", a)
	}
	if a.Breakdown.BiometricScore == nil {
		t.Fatalf("rmssd sample must yield a biometric score")
	}
	if _, ok := store.Latest("u1"); !ok {
		t.Fatalf("assessment not recorded")
	}
}

func TestAssessmentCadenceThrottles(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, _ := testService(cfg)

	now := time.Now().UTC()
	if a := svc.ProcessSample(rmssdSample("u1", 50, now)); a == nil {
		t.Fatalf("first sample must assess")
	}
	if a := svc.ProcessSample(rmssdSample("u1", 52, now.Add(time.Second))); a != nil {
		t.Fatalf("second sample inside the cadence must not assess")
	}
}

func TestDuplicateSamplesDropped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fusion.AssessmentInterval = 0
	svc, _ := testService(cfg)

	sample := rmssdSample("u1", 50, time.Now().UTC())
	if a := svc.ProcessSample(sample); a == nil {
		t.Fatalf("first sample must assess")
	}
	if a := svc.ProcessSample(sample); a != nil {
		t.Fatalf("identical retransmission must be dropped")
	}
}

func TestNudgeCooldownSuppressesRecommendations(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fusion.AssessmentInterval = 0
	svc, _ := testService(cfg)

	now := time.Now().UTC()
	first := svc.ProcessSample(rmssdSample("u1", 50, now))
	if first == nil || len(first.Recommendations) == 0 {
		t.Fatalf("first assessment must carry recommendations")
	}
	second := svc.ProcessSample(rmssdSample("u1", 52, now.Add(time.Second)))
	if second == nil {
		t.Fatalf("second sample must assess")
	}
	if len(second.Recommendations) != 0 {
		t.Fatalf("cooldown must suppress repeat nudges, got %v", second.Recommendations)
	}
}

func TestIBISamplesFeedWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HRV.MinSamples = 5
	svc, _ := testService(cfg)

	ibis := make([]float64, 40)
	for i := range ibis {
		if i%2 == 0 {
			ibis[i] = 780
		} else {
			ibis[i] = 820
		}
	}
	a := svc.ProcessSample(model.Sample{
		UserID:    "u1",
		HeartRate: 75,
		IBIms:     ibis,
		Source:    "strap",
		Timestamp: time.Now().UTC(),
	})
	if a == nil {
		t.Fatalf("expected assessment from ibi sample")
	}
	if a.Breakdown.BiometricScore == nil {
		t.Fatalf("ibi window must yield a biometric score")
	}
}

func TestFlowStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, _ := testService(cfg)

	if _, ok := svc.FlowStatus("nobody"); ok {
		t.Fatalf("unknown user must have no status")
	}
	svc.ProcessSample(rmssdSample("u1", 50, time.Now().UTC()))
	st, ok := svc.FlowStatus("u1")
	if !ok {
		t.Fatalf("expected status after processing")
	}
	if st.UserID != "u1" || st.LatestAssessment == nil {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.IsCalibrated {
		t.Fatalf("one reading cannot calibrate a baseline")
	}
}

func TestUpdateContextAndEndSession(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, _ := testService(cfg)

	sleepHours := 4.5
	svc.UpdateContext("u1", ContextUpdate{
		SleepHours: &sleepHours,
		Features:   &model.BehavioralFeatures{SessionMinutes: 120, HourOfDay: 10},
		Chronotype: "night_owl",
	})
	a := svc.ProcessSample(rmssdSample("u1", 50, time.Now().UTC()))
	if a == nil {
		t.Fatalf("expected assessment")
	}
	// 120 min plus short sleep lands at high fatigue.
	if a.Breakdown.FatigueLevel != model.FatigueHigh {
		t.Fatalf("expected high fatigue, got %s", a.Breakdown.FatigueLevel)
	}

	if !svc.EndSession("u1") {
		t.Fatalf("expected session to end")
	}
	if svc.SessionCount() != 0 {
		t.Fatalf("session map not cleared")
	}
	if svc.EndSession("u1") {
		t.Fatalf("double end must report false")
	}
}

func TestResetClearsSessions(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, _ := testService(cfg)
	svc.ProcessSample(rmssdSample("u1", 50, time.Now().UTC()))
	svc.ProcessSample(rmssdSample("u2", 48, time.Now().UTC()))
	if svc.SessionCount() != 2 {
		t.Fatalf("expected two sessions")
	}
	svc.Reset()
	if svc.SessionCount() != 0 {
		t.Fatalf("reset must clear sessions")
	}
}
