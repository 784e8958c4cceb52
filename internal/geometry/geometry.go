// Package geometry builds the spanwise blade description handed to the BEM
// solver: the reference axis is resampled on a uniform span grid, rescaled
// to the target rotor diameter by arc length, and split into hub, interior
// aerodynamic stations and tip.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/rotorprep/internal/grid"
)

// ErrRadiusNotIncreasing is returned when the derived station radii are
// not strictly increasing from root to tip.
var ErrRadiusNotIncreasing = errors.New("station radius not strictly increasing")

// Input describes the unstretched blade. Curve grids are normalized span
// (0 = root, 1 = tip). Twist is in radians.
type Input struct {
	RefAxisX grid.Curve // precurve direction
	RefAxisY grid.Curve // presweep direction
	RefAxisZ grid.Curve // spanwise direction
	Chord    grid.Curve
	Twist    grid.Curve

	HubRadius     float64
	RotorDiameter float64 // 0 keeps the authored length
	NSpan         int     // span stations including hub and tip
}

// Blade is the normalized spanwise geometry. Per-station slices cover the
// interior stations only; hub and tip are carried as scalars.
type Blade struct {
	Span     []float64 // normalized span of each interior station
	R        []float64 // m
	Chord    []float64 // m
	TwistDeg []float64
	Precurve []float64 // m
	Presweep []float64 // m

	Rhub        float64
	Rtip        float64
	PrecurveTip float64
	PresweepTip float64

	// ArcLength is the 3-D length of the resampled, unscaled reference axis.
	ArcLength float64
	// Scale is the factor applied to the spanwise coordinate (1 when the
	// rotor diameter is 0).
	Scale float64
}

// Stations returns the number of interior stations.
func (b *Blade) Stations() int {
	return len(b.R)
}

// Normalize resamples, rescales and splits the reference axis.
func Normalize(in Input) (*Blade, error) {
	if in.NSpan < 3 {
		return nil, fmt.Errorf("span station count %d: need at least 3", in.NSpan)
	}
	for _, v := range []struct {
		name string
		val  float64
	}{{"hub radius", in.HubRadius}, {"rotor diameter", in.RotorDiameter}} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return nil, fmt.Errorf("%s %v: %w", v.name, v.val, grid.ErrNonFinite)
		}
	}

	span := grid.Linspace(0, 1, in.NSpan)
	interior := span[1 : in.NSpan-1]

	var x, y, z, chord, twist []float64
	curves := []struct {
		name  string
		curve grid.Curve
		at    []float64
		dst   *[]float64
	}{
		{"reference axis x", in.RefAxisX, span, &x},
		{"reference axis y", in.RefAxisY, span, &y},
		{"reference axis z", in.RefAxisZ, span, &z},
		{"chord", in.Chord, interior, &chord},
		{"twist", in.Twist, interior, &twist},
	}
	for _, c := range curves {
		if err := c.curve.Validate(c.name); err != nil {
			return nil, err
		}
		vals, err := c.curve.Sample(c.at)
		if err != nil {
			return nil, fmt.Errorf("sampling %s: %w", c.name, err)
		}
		*c.dst = vals
	}

	axis := make([]r3.Vec, in.NSpan)
	for i := range axis {
		axis[i] = r3.Vec{X: x[i], Y: y[i], Z: z[i]}
	}
	length := ArcLength(axis)

	scale := 1.0
	if in.RotorDiameter != 0 {
		scale = in.RotorDiameter / (2 * (length + in.HubRadius))
		for i := range z {
			z[i] *= scale
		}
	}

	b := &Blade{
		Span:     append([]float64(nil), interior...),
		R:        make([]float64, len(interior)),
		Chord:    chord,
		TwistDeg: make([]float64, len(interior)),
		Precurve: append([]float64(nil), x[1:in.NSpan-1]...),
		Presweep: append([]float64(nil), y[1:in.NSpan-1]...),

		Rhub:        in.HubRadius,
		Rtip:        z[in.NSpan-1] + in.HubRadius,
		PrecurveTip: x[in.NSpan-1],
		PresweepTip: y[in.NSpan-1],
		ArcLength:   length,
		Scale:       scale,
	}
	for i := range interior {
		b.R[i] = z[i+1] + in.HubRadius
		b.TwistDeg[i] = twist[i] * 180 / math.Pi
	}

	prev := b.Rhub
	for i, r := range b.R {
		if !(r > prev) {
			return nil, fmt.Errorf("station %d radius %.6g m after %.6g m: %w", i, r, prev, ErrRadiusNotIncreasing)
		}
		prev = r
	}
	if !(b.Rtip > prev) {
		return nil, fmt.Errorf("tip radius %.6g m after %.6g m: %w", b.Rtip, prev, ErrRadiusNotIncreasing)
	}
	return b, nil
}

// ArcLength returns the length of the polyline through pts.
func ArcLength(pts []r3.Vec) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += r3.Norm(r3.Sub(pts[i], pts[i-1]))
	}
	return total
}
