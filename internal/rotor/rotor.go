// Package rotor assembles the prepared blade, environment and station
// airfoils into the description consumed by a BEM solver, and defines the
// solver contract.
package rotor

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/rotorprep/internal/geometry"
	"github.com/star/rotorprep/internal/polar"
)

// ErrInvalidRotor is returned by Assemble for inconsistent inputs.
var ErrInvalidRotor = errors.New("invalid rotor")

// Flags toggle the BEM corrections applied by the solver.
type Flags struct {
	TipLoss      bool `json:"tip_loss"`
	HubLoss      bool `json:"hub_loss"`
	WakeRotation bool `json:"wake_rotation"`
	UseCD        bool `json:"use_cd"`
}

// AllFlags enables every correction.
func AllFlags() Flags {
	return Flags{TipLoss: true, HubLoss: true, WakeRotation: true, UseCD: true}
}

// Environment is the inflow and fluid description.
type Environment struct {
	Rho       float64 `json:"rho"`        // kg/m^3
	Mu        float64 `json:"mu"`         // kg/(m s)
	ShearExp  float64 `json:"shear_exp"`  // power-law exponent
	HubHeight float64 `json:"hub_height"` // m
}

// Config carries the rotor-level scalars that do not come from the blade.
type Config struct {
	Blades     int
	PreconeDeg float64
	TiltDeg    float64
	YawDeg     float64
	NSector    int
	Flags      Flags
}

// Rotor is the complete solver input. It is immutable once assembled and
// safe to share between goroutines.
type Rotor struct {
	R        []float64
	Chord    []float64
	TwistDeg []float64
	Precurve []float64
	Presweep []float64

	Rhub        float64
	Rtip        float64
	PrecurveTip float64
	PresweepTip float64

	Blades     int
	PreconeDeg float64
	TiltDeg    float64
	YawDeg     float64
	NSector    int

	Environment
	Flags

	// Airfoils holds one entry per station, root to tip.
	Airfoils []*StationAirfoil
}

// Stations returns the number of aerodynamic stations.
func (r *Rotor) Stations() int {
	return len(r.R)
}

// Assemble combines the normalized blade with one blended table per
// station. aoa and re are the table grids shared by every station.
func Assemble(b *geometry.Blade, aoa, re []float64, tables []*polar.Table, env Environment, cfg Config) (*Rotor, error) {
	if b == nil {
		return nil, fmt.Errorf("nil blade: %w", ErrInvalidRotor)
	}
	if len(tables) != b.Stations() {
		return nil, fmt.Errorf("%d station tables for %d stations: %w", len(tables), b.Stations(), ErrInvalidRotor)
	}
	if cfg.Blades < 1 {
		return nil, fmt.Errorf("blade count %d: %w", cfg.Blades, ErrInvalidRotor)
	}
	if cfg.NSector < 1 {
		return nil, fmt.Errorf("sector count %d: %w", cfg.NSector, ErrInvalidRotor)
	}
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"air density", env.Rho},
		{"dynamic viscosity", env.Mu},
		{"shear exponent", env.ShearExp},
		{"hub height", env.HubHeight},
		{"precone", cfg.PreconeDeg},
		{"tilt", cfg.TiltDeg},
		{"yaw", cfg.YawDeg},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return nil, fmt.Errorf("%s %v: %w", v.name, v.val, ErrInvalidRotor)
		}
	}
	if env.Rho <= 0 || env.Mu <= 0 {
		return nil, fmt.Errorf("air density %v, viscosity %v must be positive: %w", env.Rho, env.Mu, ErrInvalidRotor)
	}

	airfoils := make([]*StationAirfoil, len(tables))
	for i, t := range tables {
		af, err := NewStationAirfoil(aoa, re, t)
		if err != nil {
			return nil, fmt.Errorf("station %d: %w", i, err)
		}
		airfoils[i] = af
	}

	return &Rotor{
		R:        b.R,
		Chord:    b.Chord,
		TwistDeg: b.TwistDeg,
		Precurve: b.Precurve,
		Presweep: b.Presweep,

		Rhub:        b.Rhub,
		Rtip:        b.Rtip,
		PrecurveTip: b.PrecurveTip,
		PresweepTip: b.PresweepTip,

		Blades:     cfg.Blades,
		PreconeDeg: cfg.PreconeDeg,
		TiltDeg:    cfg.TiltDeg,
		YawDeg:     cfg.YawDeg,
		NSector:    cfg.NSector,

		Environment: env,
		Flags:       cfg.Flags,
		Airfoils:    airfoils,
	}, nil
}
