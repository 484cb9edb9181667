package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	HRV         HRVConfig         `json:"hrv" yaml:"hrv"`
	Baseline    BaselineConfig    `json:"baseline" yaml:"baseline"`
	Biometric   BiometricConfig   `json:"biometric" yaml:"biometric"`
	Fusion      FusionConfig      `json:"fusion" yaml:"fusion"`
	Chronotype  ChronotypeConfig  `json:"chronotype" yaml:"chronotype"`
	API         APIConfig         `json:"api" yaml:"api"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Assessments AssessmentsConfig `json:"assessments" yaml:"assessments"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	UDP           UDPConfig       `json:"udp" yaml:"udp"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	NATS          NATSConfig      `json:"nats" yaml:"nats"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type UDPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type NATSConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
}

type ParserConfig struct {
	Timezone      string `json:"timezone" yaml:"timezone"`
	DefaultUserID string `json:"default_user_id" yaml:"default_user_id"`
}

type HRVConfig struct {
	WindowSeconds      float64 `json:"window_seconds" yaml:"window_seconds"`
	MinSamples         int     `json:"min_samples" yaml:"min_samples"`
	SpectralMinSeconds float64 `json:"spectral_min_seconds" yaml:"spectral_min_seconds"`
	MinIBIms           float64 `json:"min_ibi_ms" yaml:"min_ibi_ms"`
	MaxIBIms           float64 `json:"max_ibi_ms" yaml:"max_ibi_ms"`
	MaxSuccessiveJump  float64 `json:"max_successive_jump_ms" yaml:"max_successive_jump_ms"`
	MaxArtifactPct     float64 `json:"max_artifact_pct" yaml:"max_artifact_pct"`
	ResampleHz         float64 `json:"resample_hz" yaml:"resample_hz"`
}

type BaselineConfig struct {
	Alpha               float64 `json:"alpha" yaml:"alpha"`
	CalibrationDays     int     `json:"calibration_days" yaml:"calibration_days"`
	CircadianBlend      float64 `json:"circadian_blend" yaml:"circadian_blend"`
	QuantileStep        float64 `json:"quantile_step" yaml:"quantile_step"`
	DefaultRestingRMSSD float64 `json:"default_resting_rmssd" yaml:"default_resting_rmssd"`
	DefaultRestingHR    float64 `json:"default_resting_hr" yaml:"default_resting_hr"`
	DefaultSleepQuality float64 `json:"default_sleep_quality" yaml:"default_sleep_quality"`
}

type BiometricConfig struct {
	Weights            BiometricWeights `json:"weights" yaml:"weights"`
	DeepFlowThreshold  float64          `json:"deep_flow_threshold" yaml:"deep_flow_threshold"`
	LightFlowThreshold float64          `json:"light_flow_threshold" yaml:"light_flow_threshold"`
	PreFlowThreshold   float64          `json:"pre_flow_threshold" yaml:"pre_flow_threshold"`
	OverloadPercentile float64          `json:"overload_percentile" yaml:"overload_percentile"`
	BoredomPercentile  float64          `json:"boredom_percentile" yaml:"boredom_percentile"`
	ArtifactConfidence float64          `json:"artifact_confidence" yaml:"artifact_confidence"`
	StaleDataDays      int              `json:"stale_data_days" yaml:"stale_data_days"`
}

type BiometricWeights struct {
	Parasympathetic float64 `json:"parasympathetic" yaml:"parasympathetic"`
	Sympathetic     float64 `json:"sympathetic" yaml:"sympathetic"`
	HeartRateZone   float64 `json:"heart_rate_zone" yaml:"heart_rate_zone"`
	SleepReadiness  float64 `json:"sleep_readiness" yaml:"sleep_readiness"`
	SignalQuality   float64 `json:"signal_quality" yaml:"signal_quality"`
}

type FusionConfig struct {
	BiometricWeight     float64       `json:"biometric_weight" yaml:"biometric_weight"`
	BehavioralWeight    float64       `json:"behavioral_weight" yaml:"behavioral_weight"`
	ContextualWeight    float64       `json:"contextual_weight" yaml:"contextual_weight"`
	PhoneOnlyBehavioral float64       `json:"phone_only_behavioral" yaml:"phone_only_behavioral"`
	PhoneOnlyContextual float64       `json:"phone_only_contextual" yaml:"phone_only_contextual"`
	DeepFlowThreshold   float64       `json:"deep_flow_threshold" yaml:"deep_flow_threshold"`
	LightFlowThreshold  float64       `json:"light_flow_threshold" yaml:"light_flow_threshold"`
	PreFlowThreshold    float64       `json:"pre_flow_threshold" yaml:"pre_flow_threshold"`
	DeepFlowPropagate   float64       `json:"deep_flow_propagate" yaml:"deep_flow_propagate"`
	LightFlowPropagate  float64       `json:"light_flow_propagate" yaml:"light_flow_propagate"`
	HistoryLimit        int           `json:"history_limit" yaml:"history_limit"`
	AssessmentInterval  time.Duration `json:"assessment_interval" yaml:"assessment_interval"`
	ReadingSeconds      float64       `json:"reading_seconds" yaml:"reading_seconds"`
	NudgeCooldown       time.Duration `json:"nudge_cooldown" yaml:"nudge_cooldown"`
	DedupeWindow        time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	MaxClockSkew        time.Duration `json:"max_clock_skew" yaml:"max_clock_skew"`
	MaxFutureSkew       time.Duration `json:"max_future_skew" yaml:"max_future_skew"`
}

type ChronotypeConfig struct {
	Default string `json:"default" yaml:"default"`
	// Multipliers overrides the built-in hour tables per chronotype.
	Multipliers map[string]map[int]float64 `json:"multipliers,omitempty" yaml:"multipliers,omitempty"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type AssessmentsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			UDP:           UDPConfig{Enabled: false, Addr: ":9001"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
			NATS:          NATSConfig{Enabled: false, URL: "nats://127.0.0.1:4222", Subject: "flowsense.samples"},
			Parser:        ParserConfig{Timezone: "UTC", DefaultUserID: "unknown"},
		},
		HRV: HRVConfig{
			WindowSeconds:      90,
			MinSamples:         30,
			SpectralMinSeconds: 60,
			MinIBIms:           300,
			MaxIBIms:           2000,
			MaxSuccessiveJump:  250,
			MaxArtifactPct:     0.2,
			ResampleHz:         4,
		},
		Baseline: BaselineConfig{
			Alpha:               0.1,
			CalibrationDays:     14,
			CircadianBlend:      0.2,
			QuantileStep:        0.05,
			DefaultRestingRMSSD: 42,
			DefaultRestingHR:    65,
			DefaultSleepQuality: 0.7,
		},
		Biometric: BiometricConfig{
			Weights: BiometricWeights{
				Parasympathetic: 0.35,
				Sympathetic:     0.35,
				HeartRateZone:   0.15,
				SleepReadiness:  0.10,
				SignalQuality:   0.05,
			},
			DeepFlowThreshold:  80,
			LightFlowThreshold: 60,
			PreFlowThreshold:   40,
			OverloadPercentile: 0.90,
			BoredomPercentile:  0.10,
			ArtifactConfidence: 0.03,
			StaleDataDays:      7,
		},
		Fusion: FusionConfig{
			BiometricWeight:     0.50,
			BehavioralWeight:    0.30,
			ContextualWeight:    0.20,
			PhoneOnlyBehavioral: 0.48,
			PhoneOnlyContextual: 0.52,
			DeepFlowThreshold:   80,
			LightFlowThreshold:  60,
			PreFlowThreshold:    40,
			DeepFlowPropagate:   75,
			LightFlowPropagate:  55,
			HistoryLimit:        10,
			AssessmentInterval:  45 * time.Second,
			ReadingSeconds:      45,
			NudgeCooldown:       10 * time.Minute,
			DedupeWindow:        1 * time.Second,
			MaxClockSkew:        2 * time.Minute,
			MaxFutureSkew:       2 * time.Minute,
		},
		Chronotype:  ChronotypeConfig{Default: "intermediate"},
		API:         APIConfig{Enabled: true, Addr: ":8081"},
		Storage:     StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:flowsense.db?_pragma=busy_timeout(5000)"},
		Assessments: AssessmentsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
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

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultUserID == "" {
		cfg.Ingest.Parser.DefaultUserID = "unknown"
	}
	if cfg.HRV.WindowSeconds <= 0 {
		cfg.HRV.WindowSeconds = def.HRV.WindowSeconds
	}
	if cfg.HRV.MinSamples <= 0 {
		cfg.HRV.MinSamples = def.HRV.MinSamples
	}
	if cfg.HRV.ResampleHz <= 0 {
		cfg.HRV.ResampleHz = def.HRV.ResampleHz
	}
	if cfg.Baseline.Alpha <= 0 || cfg.Baseline.Alpha >= 1 {
		cfg.Baseline.Alpha = def.Baseline.Alpha
	}
	if cfg.Baseline.CalibrationDays <= 0 {
		cfg.Baseline.CalibrationDays = def.Baseline.CalibrationDays
	}
	if cfg.Baseline.DefaultRestingRMSSD <= 0 {
		cfg.Baseline.DefaultRestingRMSSD = def.Baseline.DefaultRestingRMSSD
	}
	if cfg.Baseline.DefaultRestingHR <= 0 {
		cfg.Baseline.DefaultRestingHR = def.Baseline.DefaultRestingHR
	}
	if cfg.Fusion.HistoryLimit <= 0 {
		cfg.Fusion.HistoryLimit = def.Fusion.HistoryLimit
	}
	if cfg.Fusion.AssessmentInterval <= 0 {
		cfg.Fusion.AssessmentInterval = def.Fusion.AssessmentInterval
	}
	if cfg.Fusion.ReadingSeconds <= 0 {
		cfg.Fusion.ReadingSeconds = def.Fusion.ReadingSeconds
	}
	if cfg.Chronotype.Default == "" {
		cfg.Chronotype.Default = def.Chronotype.Default
	}
	if cfg.Assessments.StoreLimit <= 0 {
		cfg.Assessments.StoreLimit = def.Assessments.StoreLimit
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.UDP.Enabled && cfg.Ingest.UDP.Addr == "" {
		return errors.New("ingest.udp.addr required when ingest.udp.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.NATS.Enabled && (cfg.Ingest.NATS.URL == "" || cfg.Ingest.NATS.Subject == "") {
		return errors.New("ingest.nats requires url and subject")
	}
	bw := cfg.Biometric.Weights
	bioSum := bw.Parasympathetic + bw.Sympathetic + bw.HeartRateZone + bw.SleepReadiness + bw.SignalQuality
	if math.Abs(bioSum-1.0) > 1e-9 {
		return fmt.Errorf("biometric.weights must sum to 1.0, got %v", bioSum)
	}
	fusedSum := cfg.Fusion.BiometricWeight + cfg.Fusion.BehavioralWeight + cfg.Fusion.ContextualWeight
	if math.Abs(fusedSum-1.0) > 1e-9 {
		return fmt.Errorf("fusion weights must sum to 1.0, got %v", fusedSum)
	}
	phoneSum := cfg.Fusion.PhoneOnlyBehavioral + cfg.Fusion.PhoneOnlyContextual
	if math.Abs(phoneSum-1.0) > 1e-9 {
		return fmt.Errorf("fusion phone-only weights must sum to 1.0, got %v", phoneSum)
	}
	if cfg.HRV.MinIBIms <= 0 || cfg.HRV.MaxIBIms <= cfg.HRV.MinIBIms {
		return errors.New("hrv ibi bounds invalid")
	}
	if cfg.Biometric.OverloadPercentile <= cfg.Biometric.BoredomPercentile {
		return errors.New("biometric.overload_percentile must exceed boredom_percentile")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a fixed config with no backing file.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
