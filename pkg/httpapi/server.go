// Package httpapi exposes the feedback loop over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forgeloop/pkg/llm"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/loop"
	"forgeloop/pkg/metrics"
)

// LoopRunner runs one feedback-loop invocation to a terminal result.
type LoopRunner interface {
	Run(ctx context.Context, req loop.Request) loop.Result
}

// UsageQuerier reports aggregated LLM usage for a component.
type UsageQuerier interface {
	GetComponentUsage(ctx context.Context, component string) (*metrics.UsageMetrics, error)
	GetUsageByModel(ctx context.Context, component string) (map[string]*metrics.UsageMetrics, error)
}

// Server serves the loop API, health and metrics endpoints.
type Server struct {
	runner    LoopRunner
	usage     UsageQuerier
	registry  *prometheus.Registry
	logger    *logx.Logger
	maxRounds int
}

// NewServer wires the API server. usage may be nil when no Prometheus
// instance is configured; registry may be nil to serve the default gatherer.
func NewServer(runner LoopRunner, usage UsageQuerier, registry *prometheus.Registry, maxRounds int, logger *logx.Logger) *Server {
	if logger == nil {
		logger = logx.NewLogger("httpapi")
	}
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &Server{
		runner:    runner,
		usage:     usage,
		registry:  registry,
		logger:    logger,
		maxRounds: maxRounds,
	}
}

// loopRequest is the POST /api/v1/loop body.
type loopRequest struct {
	Instructions        string            `json:"instructions"`
	MaxRounds           int               `json:"max_rounds,omitempty"`
	OrchestratorSession string            `json:"orchestrator_session,omitempty"`
	WorkerSessions      map[string]string `json:"worker_sessions,omitempty"`
	Images              []llm.Attachment  `json:"images,omitempty"`
}

// RegisterRoutes attaches all handlers to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/loop", s.handleLoop)
	mux.HandleFunc("/api/v1/metrics/usage", s.handleUsage)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
}

func (s *Server) handleLoop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Instructions == "" {
		http.Error(w, "instructions are required", http.StatusBadRequest)
		return
	}
	maxRounds := req.MaxRounds
	if maxRounds < 1 {
		maxRounds = s.maxRounds
	}

	s.logger.Info("loop request: %d max rounds, resume=%v", maxRounds, req.OrchestratorSession != "")
	result := s.runner.Run(r.Context(), loop.Request{
		Instructions:        req.Instructions,
		MaxRounds:           maxRounds,
		OrchestratorSession: req.OrchestratorSession,
		WorkerSessions:      req.WorkerSessions,
		Attachments:         req.Images,
	})

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.usage == nil {
		http.Error(w, "metrics backend not configured", http.StatusServiceUnavailable)
		return
	}

	component := r.URL.Query().Get("component")
	components := []string{"planner", "worker"}
	if component != "" {
		components = []string{component}
	}

	if r.URL.Query().Get("by_model") != "" {
		out := make(map[string]map[string]*metrics.UsageMetrics, len(components))
		for _, c := range components {
			usage, err := s.usage.GetUsageByModel(r.Context(), c)
			if err != nil {
				s.logger.Error("per-model usage query for %s failed: %v", c, err)
				http.Error(w, "usage query failed", http.StatusBadGateway)
				return
			}
			out[c] = usage
		}
		s.writeJSON(w, http.StatusOK, out)
		return
	}

	out := make(map[string]*metrics.UsageMetrics, len(components))
	for _, c := range components {
		usage, err := s.usage.GetComponentUsage(r.Context(), c)
		if err != nil {
			s.logger.Error("usage query for %s failed: %v", c, err)
			http.Error(w, "usage query failed", http.StatusBadGateway)
			return
		}
		out[c] = usage
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

// StartServer starts the HTTP server and shuts it down when ctx is
// cancelled. It does not block.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting API server on %s", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // Parent context is cancelled; we need a fresh context for shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed: %v", err)
		}
	}()

	return nil
}
