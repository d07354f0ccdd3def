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
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/augmentweb/internal/config"
	"github.com/JakeFAU/augmentweb/internal/dataset"
	"github.com/JakeFAU/augmentweb/internal/intake"
	"github.com/JakeFAU/augmentweb/internal/metrics"
	"github.com/JakeFAU/augmentweb/internal/policy/ratelimit"
	"github.com/JakeFAU/augmentweb/internal/ui"
)

const (
	multipartMemory = 32 << 20
	lookupTimeout   = 3 * time.Second
)

// Intake is the /user_input backend used by the server.
type Intake interface {
	Accept(ctx context.Context, req dataset.Request) (intake.Submission, error)
	Get(ctx context.Context, id string) (intake.Submission, error)
}

// ReadinessCheck reports whether downstream dependencies can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the intake and the screen renderer.
type Server struct {
	router    chi.Router
	intake    Intake
	screens   *ui.Renderer
	ready     ReadinessCheck
	maxUpload int64
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil.
func NewServer(
	in Intake,
	screens *ui.Renderer,
	ready ReadinessCheck,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{
		intake:    in,
		screens:   screens,
		ready:     ready,
		maxUpload: cfg.MaxUploadBytes(),
		logger:    logger,
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/", s.home)
	r.Get("/progress", s.progress)
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Intake.RateLimitRPS, Burst: cfg.Intake.RateLimitBurst})
	r.With(rateLimitMiddleware(limiter, logger)).Post(dataset.SubmitPath, s.userInput)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/submissions/{submission_id}", s.getSubmission)
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

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// getSubmission handles GET /v1/submissions/{submission_id}. It returns
// {"submission": {...}} on success, 400 for malformed IDs and 404 when the
// record does not exist.
func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := parseSubmissionID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()

	sub, err := s.intake.Get(ctx, id.String())
	if err != nil {
		if errors.Is(err, intake.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "submission not found")
			return
		}
		s.logger.Error("get submission failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load submission")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"submission": sub})
}

func parseSubmissionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "submission_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("submission_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid submission_id")
	}
	return id, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned to the request by the server middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.String("request_id", RequestID(r.Context())),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitMiddleware(l *ratelimit.Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !l.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.ClientKey(r)
			if !l.Allow(key) {
				metrics.ObserveThrottled()
				logger.Warn("submission throttled",
					zap.String("client", key),
					zap.String("request_id", RequestID(r.Context())),
				)
				w.Header().Set("Retry-After", "1")
				http.Error(w, "too many submissions", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

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

type requestIDKey struct{}

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
