// Package diag carries non-fatal input diagnostics out of the data
// preparation stages. Stages report to a Reporter and keep going with
// corrected data; the caller decides whether diagnostics are logged,
// counted, returned to a client, or all three.
package diag

import (
	"log/slog"
	"sync"

	"github.com/star/rotorprep/internal/metrics"
)

// Kind names a class of diagnostic.
type Kind string

const (
	// KindAoAGridFallback is raised when the requested angle-of-attack
	// count is not a multiple of 4 and a uniform grid is used instead.
	KindAoAGridFallback Kind = "aoa_grid_fallback"
	// KindPolarDiscontinuity is raised when a resampled polar differs
	// between -pi and +pi and the -pi sample is overwritten.
	KindPolarDiscontinuity Kind = "polar_discontinuity"
)

// Diagnostic is one non-fatal finding. Airfoil, Re and Coefficient are
// set when the finding is tied to a specific polar.
type Diagnostic struct {
	Kind        Kind    `json:"kind"`
	Message     string  `json:"message"`
	Airfoil     string  `json:"airfoil,omitempty"`
	Re          float64 `json:"re,omitempty"`
	Coefficient string  `json:"coefficient,omitempty"`
}

// Reporter receives diagnostics. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(d Diagnostic)
}

// Discard drops every diagnostic.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(Diagnostic) {}

// LogReporter logs each diagnostic at Warn and counts it in Prometheus.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter writing to logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report implements Reporter.
func (r *LogReporter) Report(d Diagnostic) {
	attrs := []any{"kind", string(d.Kind)}
	if d.Airfoil != "" {
		attrs = append(attrs, "airfoil", d.Airfoil, "re", d.Re, "coefficient", d.Coefficient)
	}
	r.logger.Warn(d.Message, attrs...)
	metrics.IncDiagnostics(string(d.Kind))
}

// Recorder keeps every diagnostic it receives.
type Recorder struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// Report implements Reporter.
func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	r.diags = append(r.diags, d)
	r.mu.Unlock()
}

// Diagnostics returns a copy of the recorded diagnostics in arrival order.
func (r *Recorder) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Count returns how many diagnostics of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.diags {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Multi fans each diagnostic out to every reporter in order.
func Multi(reporters ...Reporter) Reporter {
	return multi(reporters)
}

type multi []Reporter

func (m multi) Report(d Diagnostic) {
	for _, r := range m {
		r.Report(d)
	}
}
