package turbine

import (
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/star/rotorprep/internal/rotor"
)

func loadFixture(t *testing.T) *Document {
	t.Helper()
	f, err := os.Open("testdata/thin_thick.yaml")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()
	doc, err := Load(f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return doc
}

func TestLoadFixture(t *testing.T) {
	doc := loadFixture(t)

	if doc.Assembly.NumberOfBlades != 3 {
		t.Errorf("blades = %d, want 3", doc.Assembly.NumberOfBlades)
	}

	cat := doc.Catalog()
	if len(cat) != 2 || cat[0].Name != "thick" || cat[1].Name != "thin" {
		t.Fatalf("catalog = %+v", cat)
	}
	if len(cat[0].Polars) != 2 || cat[0].Polars[1].Re != 5e6 {
		t.Errorf("thick polars = %+v", cat[0].Polars)
	}
	if got := cat[1].Polars[0].CL.Grid; len(got) != 3 || got[0] != -math.Pi || got[2] != math.Pi {
		t.Errorf("thin cl grid = %v", got)
	}

	assign := doc.Assignments()
	if len(assign) != 2 || assign[1].Airfoil != "thin" || assign[1].Position != 1 {
		t.Errorf("assignments = %+v", assign)
	}

	in := doc.GeometryInput(30)
	if in.HubRadius != 1.5 || in.NSpan != 30 || in.RotorDiameter != 0 {
		t.Errorf("geometry input scalars = %v %v %v", in.HubRadius, in.NSpan, in.RotorDiameter)
	}
	if in.RefAxisX.Values[1] != -1 || in.Chord.Grid[1] != 0.5 {
		t.Errorf("geometry curves not mapped")
	}
}

func TestHubHeightFallback(t *testing.T) {
	doc := loadFixture(t)
	if got := doc.HubHeight(); got != 87 {
		t.Errorf("HubHeight = %v, want tower top 85 + 2", got)
	}
	doc.Assembly.HubHeight = 90
	if got := doc.HubHeight(); got != 90 {
		t.Errorf("HubHeight = %v, want 90", got)
	}
	if env := doc.RotorEnvironment(); env.HubHeight != 90 || env.Rho != 1.225 || env.ShearExp != 0.25 {
		t.Errorf("environment = %+v", env)
	}
}

func TestRotorConfigDegrees(t *testing.T) {
	doc := loadFixture(t)
	cfg := doc.RotorConfig(4, rotor.AllFlags())
	if math.Abs(cfg.PreconeDeg-2.5) > 1e-9 || math.Abs(cfg.TiltDeg-5) > 1e-9 {
		t.Errorf("precone, tilt = %v, %v, want 2.5, 5", cfg.PreconeDeg, cfg.TiltDeg)
	}
	if cfg.Blades != 3 || cfg.NSector != 4 || !cfg.Flags.UseCD {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", "", ErrInvalidDocument},
		{"no airfoils", "components: {blade: {outer_shape_bem: {reference_axis: {z: {grid: [0, 1], values: [0, 1]}}}}}", ErrInvalidDocument},
		{"label mismatch", `
components:
  blade:
    outer_shape_bem:
      reference_axis: {z: {grid: [0, 1], values: [0, 1]}}
      airfoil_position: {grid: [0, 1], labels: [a]}
airfoils: [{name: a}]
`, ErrInvalidDocument},
		{"no blade axis", "airfoils: [{name: a}]", ErrInvalidDocument},
		{"malformed", "components: [1, 2", nil},
		{"wrong type", "assembly: {number_of_blades: three}", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
