// Package solver talks to an external BEM solver over HTTP. The solver
// receives the fully prepared rotor with every request and is expected to
// be stateless.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/star/rotorprep/internal/metrics"
	"github.com/star/rotorprep/internal/polar"
	"github.com/star/rotorprep/internal/rotor"
)

// ErrUnavailable is returned when no solver endpoint is configured.
var ErrUnavailable = errors.New("solver not configured")

// maxResponseBytes caps solver responses.
const maxResponseBytes = 16 << 20

// Client implements rotor.Solver against a remote endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	maxBody    int64
}

var _ rotor.Solver = (*Client)(nil)

// NewClient creates a Client for baseURL. An empty baseURL yields a client
// whose calls fail with ErrUnavailable.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		maxBody: maxResponseBytes,
	}
}

// Configured reports whether a solver endpoint is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type loadsRequest struct {
	Rotor wireRotor  `json:"rotor"`
	Case  rotor.Case `json:"case"`
}

type evaluateRequest struct {
	Rotor        wireRotor        `json:"rotor"`
	Conditions   rotor.Conditions `json:"conditions"`
	Coefficients bool             `json:"coefficients"`
}

// DistributedAeroLoads requests per-station loads for one case.
func (c *Client) DistributedAeroLoads(ctx context.Context, r *rotor.Rotor, cs rotor.Case) (*rotor.DistributedLoads, error) {
	var out rotor.DistributedLoads
	req := loadsRequest{Rotor: encodeRotor(r), Case: cs}
	if err := c.post(ctx, "loads", "/distributed-loads", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate requests integrated rotor performance for every case.
func (c *Client) Evaluate(ctx context.Context, r *rotor.Rotor, conds rotor.Conditions, coefficients bool) (*rotor.Performance, error) {
	var out rotor.Performance
	req := evaluateRequest{Rotor: encodeRotor(r), Conditions: conds, Coefficients: coefficients}
	if err := c.post(ctx, "evaluate", "/evaluate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, mode, path string, in, out any) (err error) {
	if !c.Configured() {
		return ErrUnavailable
	}
	start := time.Now()
	defer func() {
		metrics.RecordSolverCall(mode, time.Since(start), err)
	}()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", mode, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling solver: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return fmt.Errorf("solver response exceeds %d byte limit", c.maxBody)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("unexpected status code %d from %s: %s", resp.StatusCode, c.baseURL+path, msg)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", mode, err)
	}

	c.logger.Debug("solver call",
		"mode", mode,
		"bytes_sent", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// wireAirfoil is a station table split into one [aoa][re] matrix per
// coefficient. Angles go out in degrees.
type wireAirfoil struct {
	AlphaDeg []float64   `json:"alpha_deg"`
	Re       []float64   `json:"re"`
	CL       [][]float64 `json:"cl"`
	CD       [][]float64 `json:"cd"`
	CM       [][]float64 `json:"cm"`
}

type wireRotor struct {
	R           []float64         `json:"r"`
	Chord       []float64         `json:"chord"`
	Theta       []float64         `json:"theta"`
	Precurve    []float64         `json:"precurve"`
	Presweep    []float64         `json:"presweep"`
	Rhub        float64           `json:"rhub"`
	Rtip        float64           `json:"rtip"`
	PrecurveTip float64           `json:"precurve_tip"`
	PresweepTip float64           `json:"presweep_tip"`
	B           int               `json:"b"`
	Precone     float64           `json:"precone"`
	Tilt        float64           `json:"tilt"`
	Yaw         float64           `json:"yaw"`
	NSector     int               `json:"n_sector"`
	Environment rotor.Environment `json:"environment"`
	Flags       rotor.Flags       `json:"flags"`
	Airfoils    []wireAirfoil     `json:"airfoils"`
}

func encodeRotor(r *rotor.Rotor) wireRotor {
	w := wireRotor{
		R:           r.R,
		Chord:       r.Chord,
		Theta:       r.TwistDeg,
		Precurve:    r.Precurve,
		Presweep:    r.Presweep,
		Rhub:        r.Rhub,
		Rtip:        r.Rtip,
		PrecurveTip: r.PrecurveTip,
		PresweepTip: r.PresweepTip,
		B:           r.Blades,
		Precone:     r.PreconeDeg,
		Tilt:        r.TiltDeg,
		Yaw:         r.YawDeg,
		NSector:     r.NSector,
		Environment: r.Environment,
		Flags:       r.Flags,
		Airfoils:    make([]wireAirfoil, len(r.Airfoils)),
	}
	for s, af := range r.Airfoils {
		t := af.Table()
		nAoA, nRe := t.Dims()
		wa := wireAirfoil{AlphaDeg: af.Alpha(), Re: af.Re()}
		for i, a := range wa.AlphaDeg {
			wa.AlphaDeg[i] = a * 180 / math.Pi
		}
		mats := [polar.NumCoefficients][][]float64{}
		for _, c := range polar.Coefficients {
			m := make([][]float64, nAoA)
			for i := range m {
				m[i] = make([]float64, nRe)
				for j := range m[i] {
					m[i][j] = t.At(i, j, c)
				}
			}
			mats[c] = m
		}
		wa.CL, wa.CD, wa.CM = mats[polar.CL], mats[polar.CD], mats[polar.CM]
		w.Airfoils[s] = wa
	}
	return w
}
