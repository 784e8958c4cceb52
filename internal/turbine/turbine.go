// Package turbine reads WindIO-style turbine descriptions and maps them onto
// the inputs of the preparation stages.
//
// Only the fields consumed by the rotor preparation are decoded; everything
// else in the document is ignored. Angles in the document are radians.
package turbine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/star/rotorprep/internal/blend"
	"github.com/star/rotorprep/internal/geometry"
	"github.com/star/rotorprep/internal/grid"
	"github.com/star/rotorprep/internal/polar"
	"github.com/star/rotorprep/internal/rotor"
)

// ErrInvalidDocument is returned for documents missing required sections.
var ErrInvalidDocument = errors.New("invalid turbine document")

// Curve is a gridded quantity as written in the document.
type Curve struct {
	Grid   []float64 `yaml:"grid"`
	Values []float64 `yaml:"values"`
}

func (c Curve) grid() grid.Curve {
	return grid.Curve{Grid: c.Grid, Values: c.Values}
}

// ReferenceAxis is a 3-D axis given as one curve per coordinate.
type ReferenceAxis struct {
	X Curve `yaml:"x"`
	Y Curve `yaml:"y"`
	Z Curve `yaml:"z"`
}

// AirfoilPosition places catalog airfoils along the span.
type AirfoilPosition struct {
	Grid   []float64 `yaml:"grid"`
	Labels []string  `yaml:"labels"`
}

// BladeShape is components.blade.outer_shape_bem.
type BladeShape struct {
	ReferenceAxis   ReferenceAxis   `yaml:"reference_axis"`
	Chord           Curve           `yaml:"chord"`
	Twist           Curve           `yaml:"twist"`
	AirfoilPosition AirfoilPosition `yaml:"airfoil_position"`
}

// Components holds the hub, nacelle, tower and blade sections.
type Components struct {
	Hub struct {
		Diameter  float64 `yaml:"diameter"`
		ConeAngle float64 `yaml:"cone_angle"`
	} `yaml:"hub"`
	Nacelle struct {
		Drivetrain struct {
			Uptilt        float64 `yaml:"uptilt"`
			DistanceTTHub float64 `yaml:"distance_tt_hub"`
		} `yaml:"drivetrain"`
	} `yaml:"nacelle"`
	Tower struct {
		OuterShapeBEM struct {
			ReferenceAxis ReferenceAxis `yaml:"reference_axis"`
		} `yaml:"outer_shape_bem"`
	} `yaml:"tower"`
	Blade struct {
		OuterShapeBEM BladeShape `yaml:"outer_shape_bem"`
	} `yaml:"blade"`
}

// Assembly holds rotor-level sizing. A zero hub height is derived from the
// tower; a zero rotor diameter keeps the blade length as authored.
type Assembly struct {
	NumberOfBlades int     `yaml:"number_of_blades"`
	RotorDiameter  float64 `yaml:"rotor_diameter"`
	HubHeight      float64 `yaml:"hub_height"`
}

// Environment holds the air properties and wind shear.
type Environment struct {
	AirDensity      float64 `yaml:"air_density"`
	AirDynViscosity float64 `yaml:"air_dyn_viscosity"`
	ShearExp        float64 `yaml:"shear_exp"`
}

// Polar is one Reynolds-number entry of an airfoil.
type Polar struct {
	Re float64 `yaml:"re"`
	CL Curve   `yaml:"c_l"`
	CD Curve   `yaml:"c_d"`
	CM Curve   `yaml:"c_m"`
}

// Airfoil is a named section with its polars, one per Reynolds number.
type Airfoil struct {
	Name              string  `yaml:"name"`
	RelativeThickness float64 `yaml:"relative_thickness"`
	Polars            []Polar `yaml:"polars"`
}

// Document is a decoded turbine description.
type Document struct {
	Name        string      `yaml:"name"`
	Components  Components  `yaml:"components"`
	Assembly    Assembly    `yaml:"assembly"`
	Environment Environment `yaml:"environment"`
	Airfoils    []Airfoil   `yaml:"airfoils"`
}

// Load decodes a document from r.
func Load(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty document: %w", ErrInvalidDocument)
		}
		return nil, fmt.Errorf("decoding turbine YAML: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Parse decodes a document held in memory.
func Parse(data []byte) (*Document, error) {
	return Load(bytes.NewReader(data))
}

func (d *Document) validate() error {
	if len(d.Airfoils) == 0 {
		return fmt.Errorf("no airfoils: %w", ErrInvalidDocument)
	}
	pos := d.Components.Blade.OuterShapeBEM.AirfoilPosition
	if len(pos.Grid) != len(pos.Labels) {
		return fmt.Errorf("airfoil_position has %d grid points and %d labels: %w",
			len(pos.Grid), len(pos.Labels), ErrInvalidDocument)
	}
	if len(d.Components.Blade.OuterShapeBEM.ReferenceAxis.Z.Grid) == 0 {
		return fmt.Errorf("blade reference axis missing: %w", ErrInvalidDocument)
	}
	return nil
}

// GeometryInput returns the blade description sampled at nSpan stations.
func (d *Document) GeometryInput(nSpan int) geometry.Input {
	b := d.Components.Blade.OuterShapeBEM
	return geometry.Input{
		RefAxisX:      b.ReferenceAxis.X.grid(),
		RefAxisY:      b.ReferenceAxis.Y.grid(),
		RefAxisZ:      b.ReferenceAxis.Z.grid(),
		Chord:         b.Chord.grid(),
		Twist:         b.Twist.grid(),
		HubRadius:     0.5 * d.Components.Hub.Diameter,
		RotorDiameter: d.Assembly.RotorDiameter,
		NSpan:         nSpan,
	}
}

// Catalog converts the airfoil list in document order.
func (d *Document) Catalog() polar.Catalog {
	cat := make(polar.Catalog, len(d.Airfoils))
	for i, af := range d.Airfoils {
		polars := make([]polar.Polar, len(af.Polars))
		for j, p := range af.Polars {
			polars[j] = polar.Polar{Re: p.Re, CL: p.CL.grid(), CD: p.CD.grid(), CM: p.CM.grid()}
		}
		cat[i] = polar.Airfoil{Name: af.Name, RelativeThickness: af.RelativeThickness, Polars: polars}
	}
	return cat
}

// Assignments returns the spanwise airfoil placements.
func (d *Document) Assignments() []blend.Assignment {
	pos := d.Components.Blade.OuterShapeBEM.AirfoilPosition
	out := make([]blend.Assignment, len(pos.Labels))
	for i := range out {
		out[i] = blend.Assignment{Position: pos.Grid[i], Airfoil: pos.Labels[i]}
	}
	return out
}

// HubHeight returns the assembly hub height, or the tower top plus the
// tower-top-to-hub distance when the assembly leaves it at 0.
func (d *Document) HubHeight() float64 {
	if d.Assembly.HubHeight != 0 {
		return d.Assembly.HubHeight
	}
	var top float64
	if z := d.Components.Tower.OuterShapeBEM.ReferenceAxis.Z.Values; len(z) > 0 {
		top = z[len(z)-1]
	}
	return top + d.Components.Nacelle.Drivetrain.DistanceTTHub
}

// RotorEnvironment returns the fluid and inflow description.
func (d *Document) RotorEnvironment() rotor.Environment {
	return rotor.Environment{
		Rho:       d.Environment.AirDensity,
		Mu:        d.Environment.AirDynViscosity,
		ShearExp:  d.Environment.ShearExp,
		HubHeight: d.HubHeight(),
	}
}

// RotorConfig returns the rotor-level scalars with angles in degrees.
func (d *Document) RotorConfig(nSector int, flags rotor.Flags) rotor.Config {
	return rotor.Config{
		Blades:     d.Assembly.NumberOfBlades,
		PreconeDeg: d.Components.Hub.ConeAngle * 180 / math.Pi,
		TiltDeg:    d.Components.Nacelle.Drivetrain.Uptilt * 180 / math.Pi,
		NSector:    nSector,
		Flags:      flags,
	}
}
