package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rivalscope/research/internal/config"
	"github.com/rivalscope/research/internal/dispatcher"
	"github.com/rivalscope/research/internal/metrics"
	"github.com/rivalscope/research/internal/research"
)

// Server wires HTTP handlers to the dispatcher and job store.
type Server struct {
	router     chi.Router
	jobs       research.JobStore
	dispatcher *dispatcher.Dispatcher
	idGen      research.IDGenerator
	clock      research.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobs research.JobStore,
	dispatcher *dispatcher.Dispatcher,
	idGen research.IDGenerator,
	clock research.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		jobs:       jobs,
		dispatcher: dispatcher,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/competitors/{competitor_id}/research", func(r chi.Router) {
			r.Post("/", s.submitResearch)
			r.Get("/", s.getResearch)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	Website     string `json:"website"`
	DisplayName string `json:"display_name"`
}

// submitResearch validates the request, records the job, marks it
// processing and hands it to the worker pool. The response returns
// before any research runs.
func (s *Server) submitResearch(w http.ResponseWriter, r *http.Request) {
	competitorID := chi.URLParam(r, "competitor_id")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Website == "" {
		s.writeError(w, http.StatusBadRequest, "website is required")
		return
	}
	website, err := research.NormalizeWebsite(req.Website)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid website: %v", err))
		return
	}

	now := s.clock.Now()
	job := research.ResearchJob{
		CompetitorID: competitorID,
		Website:      website,
		DisplayName:  req.DisplayName,
		Status:       research.StatusPending,
		SubmittedAt:  now,
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		if errors.Is(err, research.ErrJobInFlight) {
			s.writeError(w, http.StatusConflict, "research already in progress for this competitor")
			return
		}
		s.logger.Error("create research job failed", zap.String("competitor_id", competitorID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create research job")
		return
	}

	// The 202 promises status "processing", so the transition happens
	// here, not when a worker eventually dequeues the item.
	if err := s.jobs.SetProcessing(r.Context(), competitorID, now); err != nil {
		s.logger.Error("mark research job processing failed", zap.String("competitor_id", competitorID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to start research")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := research.QueueItem{
		CompetitorID: competitorID,
		Website:      website,
		DisplayName:  req.DisplayName,
		Attempt:      1,
		Submitted:    now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		s.logger.Error("enqueue research job failed", zap.String("competitor_id", competitorID), zap.Error(err))
		// The row would sit in processing forever without a queue item.
		if err := s.jobs.SetError(r.Context(), competitorID, "failed to start research", nil, s.clock.Now()); err != nil {
			s.logger.Error("mark failed submission errored", zap.Error(err))
		}
		s.writeError(w, http.StatusInternalServerError, "failed to start research")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"status":   "processing",
	})
}

func (s *Server) getResearch(w http.ResponseWriter, r *http.Request) {
	competitorID := chi.URLParam(r, "competitor_id")
	job, err := s.jobs.GetJob(r.Context(), competitorID)
	if err != nil {
		if errors.Is(err, research.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "no research found for this competitor")
			return
		}
		s.logger.Error("get research job failed", zap.String("competitor_id", competitorID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load research")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			if id, err := s.idGen.NewID(); err == nil {
				reqID = id
			}
		}
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
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
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
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
