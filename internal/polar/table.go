// Package polar resamples raw airfoil polars onto the shared
// angle-of-attack and Reynolds-number grids used by the BEM solver.
package polar

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/star/rotorprep/internal/diag"
	"github.com/star/rotorprep/internal/grid"
)

// PeriodicTolerance is the largest -pi/+pi mismatch accepted without a
// diagnostic.
const PeriodicTolerance = 1e-5

var (
	// ErrDuplicateAirfoil is returned when two catalog entries share a name.
	ErrDuplicateAirfoil = errors.New("duplicate airfoil name")
	// ErrNoPolars is returned for an airfoil without any polar.
	ErrNoPolars = errors.New("airfoil has no polars")
	// ErrDuplicateRe is returned when an airfoil lists the same Reynolds number twice.
	ErrDuplicateRe = errors.New("duplicate Reynolds number")
)

// BuildTables resamples every polar in cat onto aoa, enforces exact
// periodicity at the +-pi boundary and completes each airfoil over the
// catalog-wide Reynolds grid.
func BuildTables(cat Catalog, aoa []float64, rep diag.Reporter) (*TableSet, error) {
	if len(aoa) < 2 {
		return nil, fmt.Errorf("angle-of-attack grid has %d points: need at least 2", len(aoa))
	}
	if err := grid.CheckFinite("angle-of-attack grid", aoa); err != nil {
		return nil, err
	}
	if err := grid.CheckIncreasing("angle-of-attack grid", aoa); err != nil {
		return nil, err
	}
	if err := validateCatalog(cat); err != nil {
		return nil, err
	}

	reGrid := reynoldsGrid(cat)
	set := &TableSet{
		AoA:    aoa,
		Re:     reGrid,
		Tables: make([]*Table, len(cat)),
	}
	for k := range cat {
		t, err := buildAirfoil(&cat[k], aoa, reGrid, rep)
		if err != nil {
			return nil, err
		}
		set.Tables[k] = t
	}
	return set, nil
}

// reynoldsGrid returns the sorted distinct Reynolds numbers of the catalog.
func reynoldsGrid(cat Catalog) []float64 {
	var all []float64
	for _, af := range cat {
		for _, p := range af.Polars {
			all = append(all, p.Re)
		}
	}
	return grid.Unique(all)
}

func validateCatalog(cat Catalog) error {
	if len(cat) == 0 {
		return errors.New("airfoil catalog is empty")
	}
	seen := make(map[string]bool, len(cat))
	for _, af := range cat {
		if seen[af.Name] {
			return fmt.Errorf("airfoil %q: %w", af.Name, ErrDuplicateAirfoil)
		}
		seen[af.Name] = true

		if math.IsNaN(af.RelativeThickness) || math.IsInf(af.RelativeThickness, 0) {
			return fmt.Errorf("airfoil %q relative thickness %v: %w", af.Name, af.RelativeThickness, grid.ErrNonFinite)
		}
		if len(af.Polars) == 0 {
			return fmt.Errorf("airfoil %q: %w", af.Name, ErrNoPolars)
		}

		res := make(map[float64]bool, len(af.Polars))
		for j, p := range af.Polars {
			if math.IsNaN(p.Re) || math.IsInf(p.Re, 0) {
				return fmt.Errorf("airfoil %q polar %d Reynolds number %v: %w", af.Name, j, p.Re, grid.ErrNonFinite)
			}
			if res[p.Re] {
				return fmt.Errorf("airfoil %q Re %g: %w", af.Name, p.Re, ErrDuplicateRe)
			}
			res[p.Re] = true

			for _, c := range Coefficients {
				name := fmt.Sprintf("airfoil %q Re %g %s", af.Name, p.Re, c)
				if err := p.Curve(c).Validate(name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// buildAirfoil produces the dense table of one airfoil.
func buildAirfoil(af *Airfoil, aoa, reGrid []float64, rep diag.Reporter) (*Table, error) {
	polars := make([]Polar, len(af.Polars))
	copy(polars, af.Polars)
	sort.Slice(polars, func(a, b int) bool { return polars[a].Re < polars[b].Re })

	// resampled[j][c] is polar j, coefficient c on the shared grid.
	resampled := make([][NumCoefficients][]float64, len(polars))
	for j, p := range polars {
		for _, c := range Coefficients {
			vals, err := p.Curve(c).Sample(aoa)
			if err != nil {
				return nil, fmt.Errorf("airfoil %q Re %g %s: %w", af.Name, p.Re, c, err)
			}
			enforcePeriodic(vals, af.Name, p.Re, c, rep)
			resampled[j][c] = vals
		}
	}

	t := NewTable(len(aoa), len(reGrid))
	ownRe := make([]float64, len(polars))
	for j, p := range polars {
		ownRe[j] = p.Re
	}

	ys := make([]float64, len(polars))
	for i := range aoa {
		for _, c := range Coefficients {
			for j := range polars {
				ys[j] = resampled[j][c][i]
			}
			filled, err := grid.Interp(reGrid, ownRe, ys)
			if err != nil {
				return nil, fmt.Errorf("airfoil %q Reynolds completion: %w", af.Name, err)
			}
			for j, v := range filled {
				t.Set(i, j, c, v)
			}
		}
	}
	return t, nil
}

// enforcePeriodic makes the -pi sample equal the +pi sample. Mismatches
// beyond PeriodicTolerance are reported.
func enforcePeriodic(vals []float64, airfoil string, re float64, c Coefficient, rep diag.Reporter) {
	first, last := vals[0], vals[len(vals)-1]
	if math.Abs(first-last) > PeriodicTolerance {
		rep.Report(diag.Diagnostic{
			Kind: diag.KindPolarDiscontinuity,
			Message: fmt.Sprintf("airfoil %s has %s at Re %g different between -pi and +pi rad (%g vs %g); "+
				"fixed automatically, check the input data", airfoil, c, re, first, last),
			Airfoil:     airfoil,
			Re:          re,
			Coefficient: c.String(),
		})
	}
	vals[0] = last
}
