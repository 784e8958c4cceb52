// Package grid holds the one-dimensional sampling helpers shared by the
// geometry, polar and blending stages.
//
// Interpolation follows the numpy convention the blade databases are
// authored against: linear between samples, edge values held outside the
// sampled domain.
package grid

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

var (
	// ErrEmpty is returned for curves or grids without samples.
	ErrEmpty = errors.New("empty grid")
	// ErrNonFinite is returned when a grid or sample is NaN or Inf.
	ErrNonFinite = errors.New("non-finite value")
	// ErrNotIncreasing is returned when abscissae are not strictly increasing.
	ErrNotIncreasing = errors.New("grid not strictly increasing")
	// ErrLengthMismatch is returned when a curve's grid and values differ in length.
	ErrLengthMismatch = errors.New("grid and values differ in length")
)

// Curve is a sampled one-dimensional function.
type Curve struct {
	Grid   []float64
	Values []float64
}

// Validate checks that the curve can be interpolated.
func (c Curve) Validate(name string) error {
	if len(c.Grid) == 0 {
		return fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	if len(c.Grid) != len(c.Values) {
		return fmt.Errorf("%s: %d grid points, %d values: %w", name, len(c.Grid), len(c.Values), ErrLengthMismatch)
	}
	if err := CheckFinite(name+" grid", c.Grid); err != nil {
		return err
	}
	if err := CheckFinite(name+" values", c.Values); err != nil {
		return err
	}
	return CheckIncreasing(name+" grid", c.Grid)
}

// Sample evaluates the curve at every point of at.
func (c Curve) Sample(at []float64) ([]float64, error) {
	return Interp(at, c.Grid, c.Values)
}

// Linspace returns n evenly spaced points over [l, u]. Both ends are exact.
func Linspace(l, u float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{l}
	}
	dst := floats.Span(make([]float64, n), l, u)
	dst[n-1] = u
	return dst
}

// CheckFinite reports the first NaN or Inf in vs.
func CheckFinite(name string, vs []float64) error {
	for i, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s[%d] = %v: %w", name, i, v, ErrNonFinite)
		}
	}
	return nil
}

// CheckIncreasing reports the first pair of samples that is not strictly increasing.
func CheckIncreasing(name string, xs []float64) error {
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return fmt.Errorf("%s[%d] = %v after %v: %w", name, i, xs[i], xs[i-1], ErrNotIncreasing)
		}
	}
	return nil
}

// Interp evaluates the piecewise-linear interpolant of (xs, ys) at every
// point of at, holding the edge values outside [xs[0], xs[len(xs)-1]].
// A single sample yields a constant.
func Interp(at, xs, ys []float64) ([]float64, error) {
	if len(xs) == 0 {
		return nil, ErrEmpty
	}
	if len(xs) != len(ys) {
		return nil, ErrLengthMismatch
	}
	out := make([]float64, len(at))
	if len(xs) == 1 {
		for i := range out {
			out[i] = ys[0]
		}
		return out, nil
	}
	if err := CheckIncreasing("abscissa", xs); err != nil {
		return nil, err
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, err
	}
	for i, x := range at {
		out[i] = pl.Predict(x)
	}
	return out, nil
}

// Unique returns the sorted distinct values of vs.
func Unique(vs []float64) []float64 {
	out := slices.Clone(vs)
	slices.Sort(out)
	return slices.Compact(out)
}
