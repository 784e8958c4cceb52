package polar

import (
	"fmt"
	"math"
	"slices"

	"github.com/star/rotorprep/internal/diag"
	"github.com/star/rotorprep/internal/grid"
)

// BuildAoAGrid returns the shared angle-of-attack grid in radians over
// [-pi, pi]. When n is a multiple of 4, half the points fall within
// +-30 degrees; otherwise the grid is uniform and a diagnostic is reported.
func BuildAoAGrid(n int, rep diag.Reporter) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("angle-of-attack count %d: need at least 2", n)
	}

	if n%4 != 0 {
		rep.Report(diag.Diagnostic{
			Kind: diag.KindAoAGridFallback,
			Message: fmt.Sprintf("angle-of-attack count %d is not a multiple of 4, using an equally spaced grid; "+
				"choose a multiple of 4 for a grid refined between +-30 deg", n),
		})
		return grid.Linspace(-math.Pi, math.Pi, n), nil
	}

	out := make([]float64, 0, n+2)
	out = append(out, grid.Linspace(-math.Pi, -math.Pi/6, n/4+1)...)
	out = append(out, grid.Linspace(-math.Pi/6, math.Pi/6, n/2)...)
	out = append(out, grid.Linspace(math.Pi/6, math.Pi, n/4+1)...)
	return slices.Compact(out), nil
}
