package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotorprep_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rotorprep_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rotorprep_pipeline_stage_duration_seconds",
			Help:    "Duration of each data preparation stage.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"stage"},
	)

	buildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotorprep_pipeline_builds_total",
			Help: "Rotor builds by result.",
		},
		[]string{"result"},
	)

	diagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotorprep_diagnostics_total",
			Help: "Non-fatal input diagnostics by kind.",
		},
		[]string{"kind"},
	)

	solverCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotorprep_solver_calls_total",
			Help: "Calls to the external BEM solver by mode and result.",
		},
		[]string{"mode", "result"},
	)

	solverDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rotorprep_solver_duration_seconds",
			Help:    "External BEM solver call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	solverWorkersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rotorprep_solver_workers",
		Help: "Configured size of the solver worker pool.",
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rotorprep_cache_entries",
		Help: "Prepared rotors held in the cache.",
	})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotorprep_cache_hits_total",
		Help: "Rotor cache hits.",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotorprep_cache_misses_total",
		Help: "Rotor cache misses.",
	})

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rotorprep_cache_evictions_total",
		Help: "Rotor cache evictions.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		stageDurationSeconds,
		buildsTotal,
		diagnosticsTotal,
		solverCallsTotal,
		solverDurationSeconds,
		solverWorkersActive,
		cacheEntries,
		cacheHits,
		cacheMisses,
		cacheEvictions,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage records the duration of one pipeline stage.
func ObserveStage(stage string, d time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// IncBuilds counts a finished rotor build. result is "ok" or "error".
func IncBuilds(result string) {
	buildsTotal.WithLabelValues(result).Inc()
}

// IncDiagnostics counts a non-fatal diagnostic of the given kind.
func IncDiagnostics(kind string) {
	diagnosticsTotal.WithLabelValues(kind).Inc()
}

// RecordSolverCall records one external solver call.
func RecordSolverCall(mode string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	solverCallsTotal.WithLabelValues(mode, result).Inc()
	solverDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// SetSolverWorkers publishes the configured worker pool size.
func SetSolverWorkers(n int) {
	solverWorkersActive.Set(float64(n))
}

// SetCacheEntries publishes the current cache size.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

func IncCacheHits()   { cacheHits.Inc() }
func IncCacheMisses() { cacheMisses.Inc() }

// AddCacheEvictions counts n evicted cache entries.
func AddCacheEvictions(n int) {
	cacheEvictions.Add(float64(n))
}

// knownRoutes are exact paths reported under their own label.
var knownRoutes = map[string]bool{
	"/healthz":        true,
	"/readyz":         true,
	"/metrics":        true,
	"/api/v1/rotors":  true,
	"/api/v1/options": true,
}

// normalizeRoute collapses parameterized paths so rotor IDs and station
// indices do not become label values.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	rest, ok := strings.CutPrefix(path, "/api/v1/rotors/")
	if !ok || rest == "" {
		return "other"
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		return "/api/v1/rotors/{id}"
	case len(parts) == 2 && parts[1] == "loads":
		return "/api/v1/rotors/{id}/loads"
	case len(parts) == 2 && parts[1] == "evaluate":
		return "/api/v1/rotors/{id}/evaluate"
	case len(parts) == 4 && parts[1] == "stations" && parts[3] == "coefficients":
		return "/api/v1/rotors/{id}/stations/{station}/coefficients"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
