// Package api exposes the read-only ops interface: health, metrics, and the
// assembled daily digest.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/clock"
	"github.com/merchwire/shopsignal/internal/digest"
)

const digestTimeout = 10 * time.Second

// DigestSource assembles the digest for a date on demand.
type DigestSource interface {
	Assemble(ctx context.Context, day time.Time) (*digest.Digest, error)
}

// Server wires HTTP handlers to the digest assembler.
type Server struct {
	router  chi.Router
	digests DigestSource
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(digests DigestSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{digests: digests, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/digest/{date}", s.getDigest)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getDigest handles GET /v1/digest/{date}. The date is a calendar date in
// the configured local time zone, formatted 2006-01-02.
func (s *Server) getDigest(w http.ResponseWriter, r *http.Request) {
	if s.digests == nil {
		writeError(w, http.StatusServiceUnavailable, "digest source unavailable")
		return
	}
	day, err := clock.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), digestTimeout)
	defer cancel()

	d, err := s.digests.Assemble(ctx, day)
	if err != nil {
		s.logger.Error("digest assembly failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "digest assembly failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
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
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
