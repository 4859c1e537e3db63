// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-im/account-crawler/internal/config"
	"github.com/meridian-im/account-crawler/internal/cursor"
	"github.com/meridian-im/account-crawler/internal/metrics"
)

// Pinger reports downstream health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the shared crawl state.
type Server struct {
	router chi.Router
	cache  cursor.Store
	db     Pinger
	logger *zap.Logger

	requestLogging atomic.Bool
}

// NewServer constructs a Server with middleware and routes. db may be
// nil when the service runs on in-memory storage.
func NewServer(cache cursor.Store, db Pinger, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		cache:  cache,
		db:     db,
		logger: logger,
	}
	s.requestLogging.Store(true)
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/crawler", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/status", s.status)
		r.Post("/accelerate", s.accelerate)
		r.Post("/reset", s.reset)
	})

	r.Route("/v1/logging", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/requests", s.setRequestLogging)
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
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if pinger, ok := s.cache.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "cache unavailable")
			return
		}
	}
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Cursor      string `json:"cursor,omitempty"`
	SweepOpen   bool   `json:"sweep_open"`
	Accelerated bool   `json:"accelerated"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	cur, err := s.cache.GetCursor(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read cursor failed")
		return
	}
	accelerated, err := s.cache.IsAccelerated(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read acceleration failed")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Cursor:      cur.String(),
		SweepOpen:   cur.Valid,
		Accelerated: accelerated,
	})
}

type accelerateRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) accelerate(w http.ResponseWriter, r *http.Request) {
	var req accelerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.cache.SetAccelerated(r.Context(), req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, "set acceleration failed")
		return
	}
	metrics.SetAccelerated(req.Enabled)
	s.logger.Info("crawl acceleration changed", zap.Bool("enabled", req.Enabled))
	writeJSON(w, http.StatusOK, map[string]bool{"accelerated": req.Enabled})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.ClearCursor(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "clear cursor failed")
		return
	}
	s.logger.Info("crawl cursor reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type requestLoggingRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setRequestLogging(w http.ResponseWriter, r *http.Request) {
	var req requestLoggingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.requestLogging.Store(req.Enabled)
	s.logger.Info("request logging changed", zap.Bool("enabled", req.Enabled))
	writeJSON(w, http.StatusOK, map[string]bool{"request_logging": req.Enabled})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.requestLogging.Load() {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
