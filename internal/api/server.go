// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/config"
	"github.com/civicgraph/harvester/internal/crawler"
	"github.com/civicgraph/harvester/internal/metrics"
	"github.com/civicgraph/harvester/internal/runner"
	"github.com/civicgraph/harvester/internal/store"
)

// Server wires HTTP handlers to the run queue, registry, and dataset.
type Server struct {
	router   chi.Router
	registry *runner.Registry
	pool     *runner.Pool
	dataset  *store.DatasetStore
	idGen    crawler.IDGenerator
	clock    crawler.Clock
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	registry *runner.Registry,
	pool *runner.Pool,
	dataset *store.DatasetStore,
	idGen crawler.IDGenerator,
	clock crawler.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		pool:     pool,
		dataset:  dataset,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.startRun)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/report", s.getRunReport)
				r.Post("/cancel", s.cancelRun)
			})
		})
		r.Route("/records", func(r chi.Router) {
			r.Get("/organizations", s.listOrganizations)
			r.Get("/projects", s.listProjects)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The dataset directory is the only external dependency.
	if _, err := s.dataset.Organizations(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "dataset unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startRunRequest struct {
	Topic               string   `json:"topic"`
	Seeds               []string `json:"seeds"`
	MaxActions          *int     `json:"max_actions"`
	MaxWallClockSeconds *int     `json:"max_wall_clock_seconds"`
	PlateauWindow       *int     `json:"plateau_window"`
	PlateauThreshold    *float64 `json:"plateau_threshold"`
	MaxDepth            *int     `json:"max_depth"`
	AllowDomains        []string `json:"allow_domains"`
	DenyDomains         []string `json:"deny_domains"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	topic, ok := s.cfg.Topics[req.Topic]
	if !ok {
		writeError(w, http.StatusNotFound, "topic not configured")
		return
	}

	runCfg, err := s.toRunConfig(req, topic)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.enqueueRun(r.Context(), runCfg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runCfg.RunID})
}

func (s *Server) toRunConfig(req startRunRequest, topic config.TopicConfig) (crawler.RunConfig, error) {
	seeds := req.Seeds
	if len(seeds) == 0 {
		seeds = topic.Seeds
	}
	if len(seeds) == 0 {
		return crawler.RunConfig{}, errors.New("no seeds configured for topic and none provided")
	}

	runID, err := s.idGen.NewID()
	if err != nil {
		return crawler.RunConfig{}, fmt.Errorf("generate run id: %w", err)
	}

	budget := crawler.StopBudget{
		MaxActions:       valueOrDefault(req.MaxActions, s.cfg.Budget.MaxActions),
		MaxWallClock:     s.cfg.MaxWallClock(),
		PlateauWindow:    valueOrDefault(req.PlateauWindow, s.cfg.Budget.PlateauWindow),
		PlateauThreshold: valueOrDefault(req.PlateauThreshold, s.cfg.Budget.PlateauThreshold),
	}
	if req.MaxWallClockSeconds != nil {
		budget.MaxWallClock = time.Duration(*req.MaxWallClockSeconds) * time.Second
	}
	if err := budget.Validate(); err != nil {
		return crawler.RunConfig{}, err
	}

	allow := req.AllowDomains
	if len(allow) == 0 {
		allow = s.cfg.Crawler.AllowDomains
	}
	deny := append([]string(nil), s.cfg.Crawler.DenyDomains...)
	deny = append(deny, req.DenyDomains...)

	return crawler.RunConfig{
		RunID: runID,
		Seeds: seeds,
		Topic: crawler.TopicContext{
			ID:          req.Topic,
			Name:        topic.Name,
			Description: topic.Description,
			Terms:       topic.Terms,
		},
		Budget:         budget,
		FetchTimeout:   s.cfg.FetchTimeout(),
		ReflectTimeout: s.cfg.ReflectTimeout(),
		MaxDepth:       valueOrDefault(req.MaxDepth, s.cfg.Crawler.MaxDepth),
		AllowDomains:   allow,
		DenyDomains:    deny,
	}, nil
}

func (s *Server) enqueueRun(ctx context.Context, runCfg crawler.RunConfig) error {
	if err := s.registry.Create(runCfg.RunID, runCfg.Topic.ID); err != nil {
		return fmt.Errorf("register run: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.pool.Enqueue(queueCtx, runner.Request{Config: runCfg}); err != nil {
		return fmt.Errorf("enqueue run: %w", err)
	}
	return nil
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.registry.Get(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) getRunReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.registry.Get(chi.URLParam(r, "run_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if run.Report == nil {
		writeError(w, http.StatusConflict, "run has not finished")
		return
	}
	writeJSON(w, http.StatusOK, run.Report)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.registry.Cancel(runID); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "status": "cancel requested"})
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.dataset.Organizations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read organizations")
		return
	}
	if orgs == nil {
		orgs = []store.OrganizationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.dataset.Projects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read projects")
		return
	}
	if projects == nil {
		projects = []store.ProjectRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
