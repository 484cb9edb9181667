package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"flowsense/internal/assessments"
	"flowsense/internal/baseline"
	"flowsense/internal/behavior"
	"flowsense/internal/biometric"
	"flowsense/internal/chrono"
	"flowsense/internal/config"
	"flowsense/internal/fatigue"
	"flowsense/internal/fusion"
	"flowsense/internal/hrv"
	"flowsense/internal/model"
	"flowsense/internal/storage"
)

// Service consumes the sample stream and drives one fusion engine per
// user. It owns the session map; engines themselves are single-user and
// unsynchronized.
type Service struct {
	logger      *slog.Logger
	assessments *assessments.Store
	store       storage.Store
	cfg         atomic.Value
	sessions    map[string]*Session
	mu          sync.Mutex
	started     time.Time
	cooldown    *Cooldown
	deDupe      *DedupeCache
}

// Session is the per-user processing state: IBI window, fusion engine,
// and the latest app-supplied context.
type Session struct {
	userID    string
	engine    *fusion.Engine
	window    *hrv.Window
	proc      *hrv.Processor
	circadian *circadianHolder

	features       model.BehavioralFeatures
	sleepQuality   *float64
	sleepHours     *float64
	hoursSinceWake *float64
	caffeineMg     float64
	theanineMg     float64

	sessionStart time.Time
	lastAssessed time.Time
	lastSample   time.Time
}

// ContextUpdate carries app-side session context that does not arrive on
// the biometric stream.
type ContextUpdate struct {
	Features       *model.BehavioralFeatures
	SleepQuality   *float64
	SleepHours     *float64
	HoursSinceWake *float64
	Chronotype     string
}

// circadianHolder lets a session swap chronotype without rebuilding its
// engine and losing score history.
type circadianHolder struct {
	mu  sync.RWMutex
	eng *chrono.Engine
}

func (c *circadianHolder) Multiplier(hour int) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eng.Multiplier(hour)
}

func (c *circadianHolder) IsOptimalHour(hour int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eng.IsOptimalHour(hour)
}

func (c *circadianHolder) swap(eng *chrono.Engine) {
	c.mu.Lock()
	c.eng = eng
	c.mu.Unlock()
}

func New(cfg *config.Config, logger *slog.Logger, assessmentsStore *assessments.Store, store storage.Store) *Service {
	s := &Service{
		logger:      logger,
		assessments: assessmentsStore,
		store:       store,
		sessions:    make(map[string]*Session),
		started:     time.Now().UTC(),
		cooldown:    NewCooldown(),
		deDupe:      NewDedupeCache(),
	}
	s.cfg.Store(cfg)
	return s
}

func (s *Service) UpdateConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
}

func (s *Service) config() *config.Config {
	if v := s.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (s *Service) Start(ctx context.Context, in <-chan model.Sample) {
	go func() {
		for {
			select {
			case sample := <-in:
				s.ProcessSample(sample)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ProcessSample folds one sample into the user's session and, when the
// assessment cadence is due, runs a fusion cycle. Returns the assessment
// when one was produced.
func (s *Service) ProcessSample(sample model.Sample) *model.UnifiedFlowAssessment {
	cfg := s.config()
	now := time.Now().UTC()
	sample.Timestamp = clampTimestamp(sample.Timestamp, now, cfg.Fusion.MaxClockSkew, cfg.Fusion.MaxFutureSkew)

	if s.isDuplicate(sample, cfg.Fusion.DedupeWindow) {
		return nil
	}

	sess := s.getSession(sample.UserID, cfg)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess.lastSample = sample.Timestamp
	if sample.SleepQuality != nil {
		sess.sleepQuality = sample.SleepQuality
	}
	if sample.CaffeineMg > 0 {
		sess.caffeineMg = sample.CaffeineMg
	}
	if sample.TheanineMg > 0 {
		sess.theanineMg = sample.TheanineMg
	}

	if len(sample.IBIms) > 0 {
		var span float64
		for _, ibi := range sample.IBIms {
			span += ibi
		}
		// Beats in a batch end at the sample timestamp.
		t := sample.Timestamp.Add(-time.Duration(span * float64(time.Millisecond)))
		for _, ibi := range sample.IBIms {
			t = t.Add(time.Duration(ibi * float64(time.Millisecond)))
			sess.window.Add(hrv.IBIEntry{Timestamp: t, IntervalMs: ibi})
		}
		cutoff := sample.Timestamp.Add(-time.Duration(cfg.HRV.WindowSeconds * float64(time.Second)))
		sess.window.Evict(cutoff)
	}

	if !sess.lastAssessed.IsZero() && now.Sub(sess.lastAssessed) < cfg.Fusion.AssessmentInterval {
		return nil
	}
	sess.lastAssessed = now

	a := s.runCycle(cfg, sess, sample, now)
	return &a
}

func (s *Service) runCycle(cfg *config.Config, sess *Session, sample model.Sample, now time.Time) model.UnifiedFlowAssessment {
	metrics := s.hrvMetrics(sess, sample, now)

	var bioIn *biometric.Input
	if metrics != nil {
		bioIn = &biometric.Input{
			HRV:          *metrics,
			HeartRate:    sample.HeartRate,
			SleepQuality: sess.sleepQuality,
		}
		if metrics.IsValid {
			sess.engine.UpdateBaseline(*bioIn, now)
		}
	}

	features := sess.features
	if features.SessionMinutes <= 0 && !sess.sessionStart.IsZero() {
		features.SessionMinutes = now.Sub(sess.sessionStart).Minutes()
	}
	if features.HourOfDay == 0 {
		features.HourOfDay = now.Hour()
	}

	a := sess.engine.Assess(fusion.CycleInput{
		Behavioral:     features,
		Biometric:      bioIn,
		SleepQuality:   sess.sleepQuality,
		SleepHours:     sess.sleepHours,
		HoursSinceWake: sess.hoursSinceWake,
		CaffeineMg:     sess.caffeineMg,
		TheanineMg:     sess.theanineMg,
		Timestamp:      now,
	})

	if len(a.Recommendations) > 0 && !s.cooldown.Allow(sess.userID, cfg.Fusion.NudgeCooldown) {
		a.Recommendations = nil
	}

	s.assessments.Add(a)
	if s.logger != nil {
		s.logger.Info("assessment",
			"user_id", a.UserID,
			"score", a.Score,
			"state", a.State,
			"confidence", a.Confidence,
		)
	}
	if s.store != nil {
		_ = s.store.SaveAssessment(context.Background(), a)
		_ = s.store.SaveBaseline(context.Background(), sess.engine.Baseline().Snapshot())
	}
	return a
}

// hrvMetrics prefers raw IBI data, then device RMSSD, then an SDNN
// estimate.
func (s *Service) hrvMetrics(sess *Session, sample model.Sample, now time.Time) *model.HRVMetrics {
	if sess.window.Len() > 0 {
		m := sess.proc.Compute(sess.window.Intervals(), now)
		return &m
	}
	if sample.RMSSD != nil && *sample.RMSSD > 0 {
		m := model.HRVMetrics{
			RMSSD:       *sample.RMSSD,
			SDNN:        sample.SDNN,
			IsValid:     true,
			Provenance:  model.ProvenanceMeasured,
			SampleCount: 0,
			Timestamp:   now,
		}
		return &m
	}
	if sample.SDNN != nil && *sample.SDNN > 0 {
		m := sess.proc.EstimateFromSDNN(*sample.SDNN, now)
		return &m
	}
	return nil
}

// UpdateContext merges app-side context into the session.
func (s *Service) UpdateContext(userID string, u ContextUpdate) {
	cfg := s.config()
	sess := s.getSession(userID, cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Features != nil {
		sess.features = *u.Features
	}
	if u.SleepQuality != nil {
		sess.sleepQuality = u.SleepQuality
	}
	if u.SleepHours != nil {
		sess.sleepHours = u.SleepHours
	}
	if u.HoursSinceWake != nil {
		sess.hoursSinceWake = u.HoursSinceWake
	}
	if u.Chronotype != "" {
		sess.circadian.swap(chrono.Build(cfg.Chronotype, chrono.ParseChronotype(u.Chronotype)))
	}
}

// FlowStatus is the per-user live view the API serves.
type FlowStatus struct {
	UserID           string                       `json:"user_id"`
	InFlow           bool                         `json:"in_flow"`
	SustainedFlow    bool                         `json:"sustained_flow"`
	Trend            model.ScoreTrend             `json:"trend"`
	TimeInState      float64                      `json:"time_in_state_sec"`
	BaselineDays     int                          `json:"baseline_days"`
	IsCalibrated     bool                         `json:"is_calibrated"`
	LatestAssessment *model.UnifiedFlowAssessment `json:"latest_assessment,omitempty"`
}

func (s *Service) FlowStatus(userID string) (FlowStatus, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok {
		s.mu.Unlock()
		return FlowStatus{}, false
	}
	st := FlowStatus{
		UserID:        userID,
		InFlow:        sess.engine.IsInFlow(),
		SustainedFlow: sess.engine.HasSustainedFlow(),
		Trend:         sess.engine.ScoreTrend(),
		TimeInState:   sess.engine.TimeInCurrentState().Seconds(),
		BaselineDays:  sess.engine.Baseline().Baseline().DaysOfData,
		IsCalibrated:  sess.engine.Baseline().IsCalibrated(),
	}
	s.mu.Unlock()
	if latest, ok := s.assessments.Latest(userID); ok {
		st.LatestAssessment = &latest
	}
	return st, true
}

// EndSession closes a user's session, clearing per-session state. The
// baseline persists.
func (s *Service) EndSession(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	sess.engine.Reset()
	sess.window.Clear()
	delete(s.sessions, userID)
	return true
}

func (s *Service) Reset() {
	s.mu.Lock()
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	s.cooldown = NewCooldown()
	s.deDupe = NewDedupeCache()
}

func (s *Service) Started() time.Time {
	return s.started
}

func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) getSession(userID string, cfg *config.Config) *Session {
	if userID == "" {
		userID = "unknown"
	}
	s.mu.Lock()
	if sess, ok := s.sessions[userID]; ok {
		s.mu.Unlock()
		return sess
	}
	s.mu.Unlock()

	bl := s.loadBaseline(userID, cfg)
	holder := &circadianHolder{eng: chrono.Build(cfg.Chronotype, "")}
	sess := &Session{
		userID:       userID,
		window:       hrv.NewWindow(time.Duration(cfg.HRV.WindowSeconds * float64(time.Second))),
		proc:         hrv.NewProcessor(cfg.HRV),
		circadian:    holder,
		sessionStart: time.Now().UTC(),
	}
	sess.engine = fusion.NewEngine(cfg, userID, bl, behavior.NewScorer(), fatigue.NewDetector(), holder)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[userID]; ok {
		return existing
	}
	s.sessions[userID] = sess
	return sess
}

func (s *Service) loadBaseline(userID string, cfg *config.Config) *baseline.Store {
	if s.store != nil {
		if b, err := s.store.LoadBaseline(context.Background(), userID); err == nil && b != nil {
			return baseline.NewFromBaseline(cfg.Baseline, *b)
		} else if err != nil && s.logger != nil {
			s.logger.Warn("baseline load failed", "user_id", userID, "err", err)
		}
	}
	return baseline.New(cfg.Baseline, userID)
}

func (s *Service) isDuplicate(sample model.Sample, dedupeWindow time.Duration) bool {
	if dedupeWindow <= 0 {
		return false
	}
	return s.deDupe.Seen(hashSample(sample), time.Now().UTC(), dedupeWindow)
}

func hashSample(sample model.Sample) string {
	parts := []string{
		sample.UserID,
		sample.Source,
		fmt.Sprintf("%.1f", sample.HeartRate),
		fmt.Sprintf("%d", len(sample.IBIms)),
		sample.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}

func clampTimestamp(ts, now time.Time, maxPast, maxFuture time.Duration) time.Time {
	if ts.IsZero() {
		return now
	}
	if maxPast > 0 && now.Sub(ts) > maxPast {
		return now
	}
	if maxFuture > 0 && ts.Sub(now) > maxFuture {
		return now
	}
	return ts
}
