package polar

import (
	"fmt"

	"github.com/star/rotorprep/internal/grid"
)

// Coefficient indexes the third axis of a Table.
type Coefficient int

const (
	CL Coefficient = iota
	CD
	CM
)

// NumCoefficients is the size of a Table's coefficient axis.
const NumCoefficients = 3

// Coefficients lists every coefficient in table order.
var Coefficients = [NumCoefficients]Coefficient{CL, CD, CM}

func (c Coefficient) String() string {
	switch c {
	case CL:
		return "cl"
	case CD:
		return "cd"
	case CM:
		return "cm"
	}
	return fmt.Sprintf("coefficient(%d)", int(c))
}

// Polar holds lift, drag and moment curves at one Reynolds number. Each
// curve is sampled over angle of attack in radians; the three grids may
// differ.
type Polar struct {
	Re float64
	CL grid.Curve
	CD grid.Curve
	CM grid.Curve
}

// NewPolar builds a Polar whose three coefficients share one angle grid.
func NewPolar(re float64, alpha, cl, cd, cm []float64) Polar {
	return Polar{
		Re: re,
		CL: grid.Curve{Grid: alpha, Values: cl},
		CD: grid.Curve{Grid: alpha, Values: cd},
		CM: grid.Curve{Grid: alpha, Values: cm},
	}
}

// Curve returns the curve for coefficient c.
func (p Polar) Curve(c Coefficient) grid.Curve {
	switch c {
	case CD:
		return p.CD
	case CM:
		return p.CM
	}
	return p.CL
}

// Airfoil is one catalog entry. RelativeThickness is thickness over chord;
// thinner sections sit toward the tip.
type Airfoil struct {
	Name              string
	RelativeThickness float64
	Polars            []Polar
}

// Catalog is the ordered airfoil catalog of a blade.
type Catalog []Airfoil

// Index returns the position of the airfoil called name, or -1.
func (c Catalog) Index(name string) int {
	for i := range c {
		if c[i].Name == name {
			return i
		}
	}
	return -1
}

// Table is a dense coefficient table over angle of attack, Reynolds number
// and coefficient. Values are stored flat, coefficient fastest.
type Table struct {
	nAoA int
	nRe  int
	data []float64
}

// NewTable allocates a zeroed nAoA x nRe table.
func NewTable(nAoA, nRe int) *Table {
	return &Table{
		nAoA: nAoA,
		nRe:  nRe,
		data: make([]float64, nAoA*nRe*NumCoefficients),
	}
}

// Dims returns the angle-of-attack and Reynolds-number axis lengths.
func (t *Table) Dims() (nAoA, nRe int) {
	return t.nAoA, t.nRe
}

// At returns the value at angle index i, Reynolds index j.
func (t *Table) At(i, j int, c Coefficient) float64 {
	return t.data[t.offset(i, j, c)]
}

// Set stores v at angle index i, Reynolds index j.
func (t *Table) Set(i, j int, c Coefficient, v float64) {
	t.data[t.offset(i, j, c)] = v
}

// Column returns a copy of the values along the angle axis at Reynolds index j.
func (t *Table) Column(j int, c Coefficient) []float64 {
	out := make([]float64, t.nAoA)
	for i := range out {
		out[i] = t.At(i, j, c)
	}
	return out
}

// Clone returns an independent copy of t.
func (t *Table) Clone() *Table {
	out := NewTable(t.nAoA, t.nRe)
	copy(out.data, t.data)
	return out
}

func (t *Table) offset(i, j int, c Coefficient) int {
	if i < 0 || i >= t.nAoA || j < 0 || j >= t.nRe {
		panic(fmt.Sprintf("polar: index (%d, %d) out of range (%d, %d)", i, j, t.nAoA, t.nRe))
	}
	return (i*t.nRe+j)*NumCoefficients + int(c)
}

// TableSet is the output of BuildTables: one table per catalog airfoil,
// all on the same angle-of-attack and Reynolds grids.
type TableSet struct {
	AoA    []float64
	Re     []float64
	Tables []*Table // index-aligned with the catalog
}
