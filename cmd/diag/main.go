package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/star/rotorprep/internal/diag"
	"github.com/star/rotorprep/internal/pipeline"
	"github.com/star/rotorprep/internal/turbine"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if len(os.Args) < 2 {
		fmt.Println("usage: diag <turbine.yaml>")
		os.Exit(2)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Println("ERROR opening turbine document:", err)
		os.Exit(1)
	}
	doc, err := turbine.Load(f)
	f.Close()
	if err != nil {
		fmt.Println("ERROR parsing turbine document:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %q: %d airfoils, %d blades\n", doc.Name, len(doc.Airfoils), doc.Assembly.NumberOfBlades)

	rec := &diag.Recorder{}
	res, err := pipeline.NewBuilder(pipeline.DefaultOptions(), logger).Build(doc, rec)
	if err != nil {
		fmt.Println("ERROR preparing rotor:", err)
		os.Exit(1)
	}

	for _, d := range rec.Diagnostics() {
		fmt.Printf("  diagnostic %s: %s\n", d.Kind, d.Message)
	}

	r := res.Rotor
	fmt.Printf("AoA points: %d, Re grid: %v\n", len(res.Tables.AoA), res.Tables.Re)
	fmt.Printf("Rhub=%.3f m Rtip=%.3f m hub height=%.2f m precone=%.2f° tilt=%.2f°\n",
		r.Rhub, r.Rtip, r.HubHeight, r.PreconeDeg, r.TiltDeg)

	re := res.Tables.Re[len(res.Tables.Re)/2]
	fmt.Printf("\n%4s %9s %8s %8s %9s %8s  (cl at alpha=0, Re=%.3g)\n", "st", "r [m]", "chord", "twist", "t/c", "cl", re)
	for i := range r.R {
		cl, _, _ := r.Airfoils[i].Evaluate(0, re)
		fmt.Printf("%4d %9.3f %8.3f %8.3f %9.4f %8.4f\n",
			i, r.R[i], r.Chord[i], r.TwistDeg[i], res.Thickness[i], cl)
	}
}
