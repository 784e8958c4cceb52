// Package pipeline runs the preparation stages in order: geometry
// normalization, angle-of-attack grid, per-airfoil tables, spanwise blend
// and rotor assembly.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/star/rotorprep/internal/blend"
	"github.com/star/rotorprep/internal/diag"
	"github.com/star/rotorprep/internal/geometry"
	"github.com/star/rotorprep/internal/metrics"
	"github.com/star/rotorprep/internal/polar"
	"github.com/star/rotorprep/internal/rotor"
	"github.com/star/rotorprep/internal/turbine"
)

// Options are the discretization and solver knobs.
type Options struct {
	NSpan   int         `json:"n_span"`
	NAoA    int         `json:"n_aoa"`
	NSector int         `json:"n_sector"`
	Flags   rotor.Flags `json:"flags"`
}

// DefaultOptions returns 30 span stations, 200 angles of attack, 4 sectors
// and every correction enabled.
func DefaultOptions() Options {
	return Options{
		NSpan:   30,
		NAoA:    200,
		NSector: 4,
		Flags:   rotor.AllFlags(),
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	switch {
	case o.NSpan < 3:
		return fmt.Errorf("n_span %d: need at least 3", o.NSpan)
	case o.NAoA < 2:
		return fmt.Errorf("n_aoa %d: need at least 2", o.NAoA)
	case o.NSector < 1:
		return fmt.Errorf("n_sector %d: need at least 1", o.NSector)
	}
	return nil
}

// Result is a prepared rotor together with the intermediate products that
// callers report on.
type Result struct {
	Rotor     *rotor.Rotor
	Blade     *geometry.Blade
	Tables    *polar.TableSet
	Thickness []float64 // blended relative thickness per station
}

// Builder prepares rotors with fixed options.
type Builder struct {
	opts   Options
	logger *slog.Logger
}

// NewBuilder creates a Builder. Options are validated on each Build.
func NewBuilder(opts Options, logger *slog.Logger) *Builder {
	return &Builder{opts: opts, logger: logger}
}

// Options returns the builder's options.
func (b *Builder) Options() Options {
	return b.opts
}

// Build runs every stage on doc. Non-fatal findings go to rep; any error
// aborts the build.
func (b *Builder) Build(doc *turbine.Document, rep diag.Reporter) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			metrics.IncBuilds("error")
			b.logger.Warn("rotor build failed", "error", err)
			return
		}
		metrics.IncBuilds("ok")
	}()

	if err := b.opts.Validate(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("nil document: %w", turbine.ErrInvalidDocument)
	}
	if rep == nil {
		rep = diag.Discard
	}

	var blade *geometry.Blade
	if err := stage("geometry", func() (err error) {
		blade, err = geometry.Normalize(doc.GeometryInput(b.opts.NSpan))
		return err
	}); err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}

	var aoa []float64
	if err := stage("aoa_grid", func() (err error) {
		aoa, err = polar.BuildAoAGrid(b.opts.NAoA, rep)
		return err
	}); err != nil {
		return nil, fmt.Errorf("angle-of-attack grid: %w", err)
	}

	cat := doc.Catalog()
	var set *polar.TableSet
	if err := stage("polar_tables", func() (err error) {
		set, err = polar.BuildTables(cat, aoa, rep)
		return err
	}); err != nil {
		return nil, fmt.Errorf("polar tables: %w", err)
	}

	var blended *blend.Result
	if err := stage("blend", func() (err error) {
		blended, err = blend.Blend(doc.Assignments(), blade.Span, cat, set)
		return err
	}); err != nil {
		return nil, fmt.Errorf("blend: %w", err)
	}

	var r *rotor.Rotor
	if err := stage("assemble", func() (err error) {
		r, err = rotor.Assemble(blade, set.AoA, set.Re, blended.Tables,
			doc.RotorEnvironment(), doc.RotorConfig(b.opts.NSector, b.opts.Flags))
		return err
	}); err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	b.logger.Info("rotor prepared",
		"stations", r.Stations(),
		"aoa_points", len(set.AoA),
		"re_points", len(set.Re),
		"airfoils", len(cat),
		"rtip", r.Rtip,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Result{Rotor: r, Blade: blade, Tables: set, Thickness: blended.Thickness}, nil
}

func stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveStage(name, time.Since(start))
	return err
}
