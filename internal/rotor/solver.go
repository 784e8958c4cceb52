package rotor

import (
	"context"
	"errors"
	"fmt"

	"github.com/star/rotorprep/internal/grid"
)

// ErrConditionLength is returned when the per-case condition slices differ
// in length.
var ErrConditionLength = errors.New("operating condition lengths differ")

// ErrNoCases is returned for conditions without any operating case.
var ErrNoCases = errors.New("no operating cases")

// Case is one operating point.
type Case struct {
	WindSpeed     float64 `json:"wind_speed"`      // m/s
	RotorSpeedRPM float64 `json:"rotor_speed_rpm"` // rpm
	PitchDeg      float64 `json:"pitch_deg"`
	YawDeg        float64 `json:"yaw_deg"`
}

// Conditions lists operating cases column-wise. YawDeg applies to every case.
type Conditions struct {
	WindSpeed     []float64 `json:"wind_speed"`
	RotorSpeedRPM []float64 `json:"rotor_speed_rpm"`
	PitchDeg      []float64 `json:"pitch_deg"`
	YawDeg        float64   `json:"yaw_deg"`
}

// Validate checks that the conditions describe at least one finite case.
func (c Conditions) Validate() error {
	n := len(c.WindSpeed)
	if len(c.RotorSpeedRPM) != n || len(c.PitchDeg) != n {
		return fmt.Errorf("wind speed %d, rotor speed %d, pitch %d: %w",
			n, len(c.RotorSpeedRPM), len(c.PitchDeg), ErrConditionLength)
	}
	if n == 0 {
		return ErrNoCases
	}
	if err := grid.CheckFinite("wind speed", c.WindSpeed); err != nil {
		return err
	}
	if err := grid.CheckFinite("rotor speed", c.RotorSpeedRPM); err != nil {
		return err
	}
	if err := grid.CheckFinite("pitch", c.PitchDeg); err != nil {
		return err
	}
	return grid.CheckFinite("yaw", []float64{c.YawDeg})
}

// Len returns the number of cases.
func (c Conditions) Len() int {
	return len(c.WindSpeed)
}

// Cases splits validated conditions into individual operating points.
func (c Conditions) Cases() []Case {
	out := make([]Case, len(c.WindSpeed))
	for i := range out {
		out[i] = Case{
			WindSpeed:     c.WindSpeed[i],
			RotorSpeedRPM: c.RotorSpeedRPM[i],
			PitchDeg:      c.PitchDeg[i],
			YawDeg:        c.YawDeg,
		}
	}
	return out
}

// DistributedLoads holds per-station results for one case.
type DistributedLoads struct {
	A  []float64 `json:"a"`  // axial induction
	AP []float64 `json:"ap"` // tangential induction
	Np []float64 `json:"np"` // normal force per unit length, N/m
	Tp []float64 `json:"tp"` // tangential force per unit length, N/m
}

// Performance holds integrated rotor results, one entry per case.
// The coefficient slices are empty unless requested.
type Performance struct {
	P  []float64 `json:"p"` // W
	T  []float64 `json:"t"` // N
	Q  []float64 `json:"q"` // N m
	CP []float64 `json:"cp,omitempty"`
	CT []float64 `json:"ct,omitempty"`
	CQ []float64 `json:"cq,omitempty"`
}

// Solver runs BEM analyses on an assembled rotor.
type Solver interface {
	DistributedAeroLoads(ctx context.Context, r *Rotor, c Case) (*DistributedLoads, error)
	Evaluate(ctx context.Context, r *Rotor, c Conditions, coefficients bool) (*Performance, error)
}

// ErrSolverOutput is returned when a solver answers with the wrong shape.
var ErrSolverOutput = errors.New("malformed solver output")

// Evaluate validates c and runs the integrated-performance analysis.
func Evaluate(ctx context.Context, s Solver, r *Rotor, c Conditions, coefficients bool) (*Performance, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	perf, err := s.Evaluate(ctx, r, c, coefficients)
	if err != nil {
		return nil, err
	}
	if perf == nil {
		return nil, fmt.Errorf("no performance: %w", ErrSolverOutput)
	}
	n := c.Len()
	if len(perf.P) != n || len(perf.T) != n || len(perf.Q) != n {
		return nil, fmt.Errorf("performance for %d cases, got P %d T %d Q %d: %w",
			n, len(perf.P), len(perf.T), len(perf.Q), ErrSolverOutput)
	}
	if coefficients && (len(perf.CP) != n || len(perf.CT) != n || len(perf.CQ) != n) {
		return nil, fmt.Errorf("coefficients for %d cases, got CP %d CT %d CQ %d: %w",
			n, len(perf.CP), len(perf.CT), len(perf.CQ), ErrSolverOutput)
	}
	return perf, nil
}

func checkLoads(l *DistributedLoads, stations int) error {
	if l == nil {
		return fmt.Errorf("no loads: %w", ErrSolverOutput)
	}
	if len(l.A) != stations || len(l.AP) != stations || len(l.Np) != stations || len(l.Tp) != stations {
		return fmt.Errorf("loads for %d stations, got a %d ap %d np %d tp %d: %w",
			stations, len(l.A), len(l.AP), len(l.Np), len(l.Tp), ErrSolverOutput)
	}
	return nil
}
