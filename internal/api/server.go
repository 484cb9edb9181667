package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flowsense/internal/assessments"
	"flowsense/internal/config"
	"flowsense/internal/model"
	"flowsense/internal/service"
)

// ServiceControl is the slice of the sample service the API drives.
type ServiceControl interface {
	Reset()
	UpdateConfig(cfg *config.Config)
	UpdateContext(userID string, u service.ContextUpdate)
	FlowStatus(userID string) (service.FlowStatus, bool)
	EndSession(userID string) bool
	Started() time.Time
	SessionCount() int
}

type Server struct {
	cfg         *config.Manager
	assessments *assessments.Store
	svc         ServiceControl
	logger      *slog.Logger
	version     string
}

type statusResponse struct {
	Status   string       `json:"status"`
	Time     string       `json:"time"`
	Version  string       `json:"version"`
	Uptime   string       `json:"uptime"`
	Sessions int          `json:"sessions"`
	Ingest   ingestStatus `json:"ingest"`
	API      apiStatus    `json:"api"`
}

type ingestStatus struct {
	REST      bool `json:"rest"`
	TCPStream bool `json:"tcp_stream"`
	UDP       bool `json:"udp"`
	FileTail  bool `json:"file_tail"`
	Kafka     bool `json:"kafka"`
	NATS      bool `json:"nats"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func Start(ctx context.Context, cfg *config.Manager, assessmentsStore *assessments.Store, svc ServiceControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:         cfg,
		assessments: assessmentsStore,
		svc:         svc,
		logger:      logger,
		version:     version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/assessments", server.handleAssessments)
	mux.HandleFunc("/assessments/", server.handleUserAssessments)
	mux.HandleFunc("/flow/", server.handleFlow)
	mux.HandleFunc("/context/", server.handleContext)
	mux.HandleFunc("/session/", server.handleSession)
	mux.HandleFunc("/config/fusion", server.handleFusionConfig)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.HandleFunc("/admin/restart", server.handleRestart)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:   "ok",
		Time:     time.Now().UTC().Format(time.RFC3339Nano),
		Version:  s.version,
		Uptime:   time.Since(s.svc.Started()).Round(time.Second).String(),
		Sessions: s.svc.SessionCount(),
		Ingest: ingestStatus{
			REST:      cfg.Ingest.REST.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			UDP:       cfg.Ingest.UDP.Enabled,
			FileTail:  cfg.Ingest.FileTail.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
			NATS:      cfg.Ingest.NATS.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssessments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.UnifiedFlowAssessment
	if sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.assessments.Since(ts)
	} else {
		list = s.assessments.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": list,
		"count":       len(list),
	})
}

func (s *Server) handleUserAssessments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user := strings.TrimPrefix(r.URL.Path, "/assessments/")
	if user == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	list := s.assessments.ListUser(user, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     user,
		"assessments": list,
		"count":       len(list),
	})
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user := strings.TrimPrefix(r.URL.Path, "/flow/")
	if user == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	status, ok := s.svc.FlowStatus(user)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type contextRequest struct {
	Features       *model.BehavioralFeatures `json:"features,omitempty"`
	SleepQuality   *float64                  `json:"sleep_quality,omitempty"`
	SleepHours     *float64                  `json:"sleep_hours,omitempty"`
	HoursSinceWake *float64                  `json:"hours_since_wake,omitempty"`
	Chronotype     string                    `json:"chronotype,omitempty"`
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user := strings.TrimPrefix(r.URL.Path, "/context/")
	if user == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req contextRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.svc.UpdateContext(user, service.ContextUpdate{
		Features:       req.Features,
		SleepQuality:   req.SleepQuality,
		SleepHours:     req.SleepHours,
		HoursSinceWake: req.HoursSinceWake,
		Chronotype:     req.Chronotype,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user := strings.TrimPrefix(r.URL.Path, "/session/")
	if user == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !s.svc.EndSession(user) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleFusionConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := s.cfg.Get()
		writeJSON(w, http.StatusOK, map[string]any{
			"fusion": cfg.Fusion,
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		next := *current
		fusionCfg := current.Fusion
		if err := json.Unmarshal(body, &fusionCfg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		next.Fusion = fusionCfg
		if err := config.Validate(&next); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := s.cfg.Update(&next); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if s.svc != nil {
			s.svc.UpdateConfig(&next)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.assessments != nil {
		s.assessments.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.svc != nil {
		s.svc.Reset()
	}
	if s.assessments != nil {
		s.assessments.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
