// Package blend interpolates per-airfoil coefficient tables along the blade
// span by relative thickness.
//
// Relative thickness is fitted over span with a monotone cubic (PCHIP) and
// evaluated at each aerodynamic station. Every table cell is then fitted
// over thickness with the same scheme and evaluated at the station's
// thickness, so a station sitting exactly on an authored airfoil reproduces
// that airfoil's table.
package blend

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/interp"

	"github.com/star/rotorprep/internal/grid"
	"github.com/star/rotorprep/internal/polar"
)

var (
	// ErrUnknownAirfoil is returned when an assignment names an airfoil
	// that is not in the catalog.
	ErrUnknownAirfoil = errors.New("unknown airfoil")
	// ErrNonMonotonicThickness is returned when relative thickness grows
	// from root to tip.
	ErrNonMonotonicThickness = errors.New("relative thickness increases toward the tip")
	// ErrTooFewControlPoints is returned when fewer than two span
	// positions carry an airfoil.
	ErrTooFewControlPoints = errors.New("too few airfoil positions")
)

// Assignment places a catalog airfoil at a normalized span position.
type Assignment struct {
	Position float64
	Airfoil  string
}

// Result holds the blended station data in root-to-tip order.
type Result struct {
	Thickness []float64
	Tables    []*polar.Table
}

// Blend builds one coefficient table per station. stations are normalized
// span positions; set must come from polar.BuildTables over cat.
func Blend(assign []Assignment, stations []float64, cat polar.Catalog, set *polar.TableSet) (*Result, error) {
	if set == nil || len(set.Tables) != len(cat) {
		return nil, fmt.Errorf("table set does not match catalog of %d airfoils", len(cat))
	}
	if len(assign) < 2 {
		return nil, fmt.Errorf("%d airfoil positions: %w", len(assign), ErrTooFewControlPoints)
	}
	if err := grid.CheckFinite("station span", stations); err != nil {
		return nil, err
	}

	pos := make([]float64, len(assign))
	thick := make([]float64, len(assign))
	idx := make([]int, len(assign))
	for k, a := range assign {
		i := cat.Index(a.Airfoil)
		if i < 0 {
			return nil, fmt.Errorf("assignment %d %q: %w", k, a.Airfoil, ErrUnknownAirfoil)
		}
		idx[k] = i
		pos[k] = a.Position
		thick[k] = cat[i].RelativeThickness
	}
	if err := grid.CheckFinite("airfoil position", pos); err != nil {
		return nil, err
	}
	if err := grid.CheckIncreasing("airfoil position", pos); err != nil {
		return nil, err
	}
	for k := 1; k < len(thick); k++ {
		if thick[k] > thick[k-1] {
			return nil, fmt.Errorf("assignment %d %q (%.4g) after assignment %d %q (%.4g): %w",
				k, assign[k].Airfoil, thick[k], k-1, assign[k-1].Airfoil, thick[k-1], ErrNonMonotonicThickness)
		}
	}

	var profile interp.FritschButland
	if err := profile.Fit(pos, thick); err != nil {
		return nil, fmt.Errorf("fit thickness profile: %w", err)
	}
	res := &Result{
		Thickness: make([]float64, len(stations)),
		Tables:    make([]*polar.Table, len(stations)),
	}
	for s, x := range stations {
		res.Thickness[s] = profile.Predict(x)
	}

	keys, sources := controlPoints(thick, idx, set.Tables)
	if len(keys) == 1 {
		for s := range res.Tables {
			res.Tables[s] = sources[0].Clone()
		}
		return res, nil
	}

	nAoA, nRe := sources[0].Dims()
	for s := range res.Tables {
		res.Tables[s] = polar.NewTable(nAoA, nRe)
	}
	ys := make([]float64, len(keys))
	var fb interp.FritschButland
	for i := 0; i < nAoA; i++ {
		for j := 0; j < nRe; j++ {
			for _, c := range polar.Coefficients {
				for k, t := range sources {
					ys[k] = t.At(i, j, c)
				}
				if err := fb.Fit(keys, ys); err != nil {
					return nil, fmt.Errorf("fit %s at aoa %d re %d: %w", c, i, j, err)
				}
				for s, t := range res.Thickness {
					res.Tables[s].Set(i, j, c, fb.Predict(t))
				}
			}
		}
	}
	return res, nil
}

// controlPoints returns the distinct thickness values in ascending order
// with the table of the first assignment that carried each one.
func controlPoints(thick []float64, idx []int, tables []*polar.Table) ([]float64, []*polar.Table) {
	type point struct {
		thickness float64
		table     *polar.Table
	}
	var pts []point
	for k, t := range thick {
		if slices.ContainsFunc(pts, func(p point) bool { return p.thickness == t }) {
			continue
		}
		pts = append(pts, point{t, tables[idx[k]]})
	}
	slices.SortFunc(pts, func(a, b point) int {
		return cmp.Compare(a.thickness, b.thickness)
	})

	keys := make([]float64, len(pts))
	sources := make([]*polar.Table, len(pts))
	for k, p := range pts {
		keys[k] = p.thickness
		sources[k] = p.table
	}
	return keys, sources
}
