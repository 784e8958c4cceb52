package rotor

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/star/rotorprep/internal/grid"
	"github.com/star/rotorprep/internal/polar"
)

// StationAirfoil evaluates one station's coefficient table at arbitrary
// angle of attack and Reynolds number.
type StationAirfoil struct {
	alpha []float64
	re    []float64
	table *polar.Table
	// fits along alpha, one per (Re slot, coefficient)
	fits []interp.PiecewiseLinear
}

// NewStationAirfoil wraps t, whose axes are alpha (radians, spanning the
// full circle) and re.
func NewStationAirfoil(alpha, re []float64, t *polar.Table) (*StationAirfoil, error) {
	if t == nil {
		return nil, fmt.Errorf("nil table: %w", ErrInvalidRotor)
	}
	nAoA, nRe := t.Dims()
	if len(alpha) != nAoA || len(re) != nRe {
		return nil, fmt.Errorf("table is %dx%d, grids are %dx%d: %w", nAoA, nRe, len(alpha), len(re), ErrInvalidRotor)
	}
	if nAoA < 2 || nRe < 1 {
		return nil, fmt.Errorf("table is %dx%d: %w", nAoA, nRe, ErrInvalidRotor)
	}
	for _, g := range []struct {
		name string
		xs   []float64
	}{{"angle of attack", alpha}, {"Reynolds number", re}} {
		if err := grid.CheckFinite(g.name, g.xs); err != nil {
			return nil, err
		}
		if err := grid.CheckIncreasing(g.name, g.xs); err != nil {
			return nil, err
		}
	}

	a := &StationAirfoil{
		alpha: slices.Clone(alpha),
		re:    slices.Clone(re),
		table: t,
		fits:  make([]interp.PiecewiseLinear, nRe*polar.NumCoefficients),
	}
	for j := 0; j < nRe; j++ {
		for _, c := range polar.Coefficients {
			if err := a.fits[j*polar.NumCoefficients+int(c)].Fit(a.alpha, t.Column(j, c)); err != nil {
				return nil, fmt.Errorf("fit %s at Re %g: %w", c, re[j], err)
			}
		}
	}
	return a, nil
}

// Alpha returns a copy of the angle-of-attack grid in radians.
func (a *StationAirfoil) Alpha() []float64 { return slices.Clone(a.alpha) }

// Re returns a copy of the Reynolds-number grid.
func (a *StationAirfoil) Re() []float64 { return slices.Clone(a.re) }

// Table returns the underlying table. Callers must not modify it.
func (a *StationAirfoil) Table() *polar.Table { return a.table }

// Evaluate returns lift, drag and moment coefficients at alpha (radians)
// and Reynolds number re. alpha is wrapped into [-pi, pi]; both axes are
// interpolated linearly and held at the table edges.
func (a *StationAirfoil) Evaluate(alpha, re float64) (cl, cd, cm float64) {
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || math.IsNaN(re) {
		nan := math.NaN()
		return nan, nan, nan
	}
	alpha = math.Remainder(alpha, 2*math.Pi)

	j0, j1, w := a.bracket(re)
	var out [polar.NumCoefficients]float64
	for _, c := range polar.Coefficients {
		v0 := a.fits[j0*polar.NumCoefficients+int(c)].Predict(alpha)
		if j1 == j0 {
			out[c] = v0
			continue
		}
		v1 := a.fits[j1*polar.NumCoefficients+int(c)].Predict(alpha)
		out[c] = v0 + w*(v1-v0)
	}
	return out[polar.CL], out[polar.CD], out[polar.CM]
}

// bracket locates re on the Reynolds grid and returns the two slots to
// blend and the weight of the upper one.
func (a *StationAirfoil) bracket(re float64) (j0, j1 int, w float64) {
	last := len(a.re) - 1
	switch {
	case re <= a.re[0]:
		return 0, 0, 0
	case re >= a.re[last]:
		return last, last, 0
	}
	j1 = sort.SearchFloat64s(a.re, re)
	j0 = j1 - 1
	if a.re[j1] == re {
		return j1, j1, 0
	}
	return j0, j1, (re - a.re[j0]) / (a.re[j1] - a.re[j0])
}
