package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/star/rotorprep/internal/auth"
	"github.com/star/rotorprep/internal/cache"
	"github.com/star/rotorprep/internal/health"
	"github.com/star/rotorprep/internal/metrics"
	"github.com/star/rotorprep/internal/pipeline"
	"github.com/star/rotorprep/internal/rotor"
)

// Config holds HTTP-facing settings.
type Config struct {
	Addr              string
	Auth              auth.Config
	TrustProxy        bool  // read client IPs from X-Forwarded-For / X-Real-IP
	MaxSolvesPerIP    int   // concurrent solver requests per client (default: 4)
	MaxSolvesPerRotor int   // concurrent solver requests per cached rotor (default: 16)
	MaxBodyBytes      int64 // turbine document size limit (default: 8 MiB)
	MaxCases          int   // operating cases per solver request (default: 1000)
	SolverTimeout     time.Duration
}

// Deps are the long-lived components the handlers use.
type Deps struct {
	Builder   *pipeline.Builder
	Cache     *cache.RotorCache
	Pool      *rotor.WorkerPool
	Solver    rotor.Solver
	Readiness *health.Readiness
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.MaxSolvesPerIP < 1 {
		cfg.MaxSolvesPerIP = 4
	}
	if cfg.MaxSolvesPerRotor < 1 {
		cfg.MaxSolvesPerRotor = 16
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if cfg.MaxCases < 1 {
		cfg.MaxCases = 1000
	}

	h := &handlers{
		cfg:     cfg,
		deps:    deps,
		limiter: newSolveLimiter(cfg.MaxSolvesPerIP, cfg.MaxSolvesPerRotor),
		logger:  logger,
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", deps.Readiness.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/options", h.options)
	mux.HandleFunc("POST /api/v1/rotors", h.createRotor)
	mux.HandleFunc("GET /api/v1/rotors/{id}", h.getRotor)
	mux.HandleFunc("GET /api/v1/rotors/{id}/stations/{station}/coefficients", h.coefficients)
	mux.HandleFunc("POST /api/v1/rotors/{id}/loads", h.limit(h.loads))
	mux.HandleFunc("POST /api/v1/rotors/{id}/evaluate", h.limit(h.evaluate))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	writeTimeout := 10 * time.Second
	if cfg.SolverTimeout > 0 {
		writeTimeout += cfg.SolverTimeout
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

const requestIDHeader = "X-Request-ID"

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
