package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/star/rotorprep/internal/auth"
	"github.com/star/rotorprep/internal/cache"
	"github.com/star/rotorprep/internal/health"
	"github.com/star/rotorprep/internal/pipeline"
	"github.com/star/rotorprep/internal/rotor"
	"github.com/star/rotorprep/internal/solver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("../turbine/testdata/thin_thick.yaml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

// stubSolver answers every case with a = 1/3 and fails above 25 m/s.
type stubSolver struct {
	err     error
	started chan struct{}
	block   chan struct{}
}

func (s *stubSolver) DistributedAeroLoads(ctx context.Context, r *rotor.Rotor, c rotor.Case) (*rotor.DistributedLoads, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.block != nil {
		s.started <- struct{}{}
		<-s.block
	}
	if c.WindSpeed > 25 {
		return nil, errors.New("cut-out exceeded")
	}
	n := r.Stations()
	l := &rotor.DistributedLoads{A: make([]float64, n), AP: make([]float64, n), Np: make([]float64, n), Tp: make([]float64, n)}
	for i := range l.A {
		l.A[i] = 1.0 / 3
	}
	return l, nil
}

func (s *stubSolver) Evaluate(ctx context.Context, r *rotor.Rotor, c rotor.Conditions, coefficients bool) (*rotor.Performance, error) {
	if s.err != nil {
		return nil, s.err
	}
	n := c.Len()
	p := &rotor.Performance{P: make([]float64, n), T: make([]float64, n), Q: make([]float64, n)}
	for i, v := range c.WindSpeed {
		p.P[i] = 1000 * v
	}
	if coefficients {
		p.CP = make([]float64, n)
		p.CT = make([]float64, n)
		p.CQ = make([]float64, n)
	}
	return p, nil
}

func testServer(t *testing.T, s rotor.Solver, cfg Config) http.Handler {
	t.Helper()
	logger := testLogger()
	rd := &health.Readiness{}
	rd.SetReady(true)
	srv := NewServer(cfg, Deps{
		Builder:   pipeline.NewBuilder(pipeline.DefaultOptions(), logger),
		Cache:     cache.NewRotorCache(cache.Config{TTL: time.Hour, MaxEntries: 8}, logger),
		Pool:      rotor.NewWorkerPool(2, logger),
		Solver:    s,
		Readiness: rd,
	}, logger)
	return srv.Handler()
}

func do(h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createRotor(t *testing.T, h http.Handler) rotorSummary {
	t.Helper()
	w := do(h, "POST", "/api/v1/rotors", fixture(t))
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("create: status %d: %s", w.Code, w.Body.String())
	}
	var sum rotorSummary
	if err := json.NewDecoder(w.Body).Decode(&sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return sum
}

func TestCreateRotor(t *testing.T) {
	h := testServer(t, &stubSolver{}, Config{})

	w := do(h, "POST", "/api/v1/rotors", fixture(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if _, err := uuid.Parse(w.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("missing request id: %q", w.Header().Get("X-Request-ID"))
	}
	var sum rotorSummary
	json.NewDecoder(w.Body).Decode(&sum)
	if sum.ID == "" || sum.Cached || sum.Stations != 28 || sum.AoAPoints != 200 || len(sum.ReGrid) != 3 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.Rtip != 51.5 || sum.HubHeight != 87 || sum.Diagnostics == nil {
		t.Errorf("unexpected summary scalars: %+v", sum)
	}

	// Same document again is served from the cache.
	again := createRotor(t, h)
	if again.ID != sum.ID || !again.Cached {
		t.Errorf("second create: id %q cached %v, want %q true", again.ID, again.Cached, sum.ID)
	}

	w = do(h, "GET", "/api/v1/rotors/"+sum.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get: status = %d", w.Code)
	}
	w = do(h, "GET", "/api/v1/rotors/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get unknown: status = %d, want 404", w.Code)
	}
}

func TestCreateRotorRejectsBadDocuments(t *testing.T) {
	h := testServer(t, &stubSolver{}, Config{MaxBodyBytes: 1 << 16})

	swapped := strings.Replace(string(fixture(t)), "labels: [thick, thin]", "labels: [thin, thick]", 1)
	tests := []struct {
		name string
		body []byte
		want int
	}{
		{"not yaml", []byte("components: [1, 2"), http.StatusBadRequest},
		{"empty", nil, http.StatusBadRequest},
		{"thickness grows", []byte(swapped), http.StatusBadRequest},
		{"too large", bytes.Repeat([]byte("#"), 1<<17), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/api/v1/rotors", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			var resp map[string]any
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}
}

func TestCoefficients(t *testing.T) {
	h := testServer(t, &stubSolver{}, Config{})
	id := createRotor(t, h).ID

	tests := []struct {
		name  string
		path  string
		want  int
		check bool
	}{
		{"valid", "/stations/0/coefficients?alpha=5&re=2e6", http.StatusOK, true},
		{"last station", "/stations/27/coefficients?alpha=-170&re=1e5", http.StatusOK, true},
		{"station out of range", "/stations/28/coefficients?alpha=0&re=1e6", http.StatusNotFound, false},
		{"station not a number", "/stations/x/coefficients?alpha=0&re=1e6", http.StatusBadRequest, false},
		{"missing alpha", "/stations/0/coefficients?re=1e6", http.StatusBadRequest, false},
		{"nan re", "/stations/0/coefficients?alpha=0&re=NaN", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "GET", "/api/v1/rotors/"+id+tt.path, nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if !tt.check {
				return
			}
			var resp map[string]float64
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["cl"] != 0.8 || resp["cd"] != 0.02 {
				t.Errorf("cl, cd = %v, %v, want 0.8, 0.02", resp["cl"], resp["cd"])
			}
		})
	}
}

func conditionsBody(winds ...float64) []byte {
	c := rotor.Conditions{
		WindSpeed:     winds,
		RotorSpeedRPM: make([]float64, len(winds)),
		PitchDeg:      make([]float64, len(winds)),
	}
	b, _ := json.Marshal(c)
	return b
}

func TestLoads(t *testing.T) {
	h := testServer(t, &stubSolver{}, Config{MaxCases: 5})
	id := createRotor(t, h).ID

	w := do(h, "POST", "/api/v1/rotors/"+id+"/loads", conditionsBody(5, 30, 11))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Failed  int          `json:"failed"`
		Results []caseResult `json:"results"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Failed != 1 || len(resp.Results) != 3 {
		t.Fatalf("failed %d results %d, want 1 and 3", resp.Failed, len(resp.Results))
	}
	if resp.Results[1].Error == "" || resp.Results[1].Loads != nil {
		t.Errorf("case 1 should carry the solver error: %+v", resp.Results[1])
	}
	if resp.Results[2].Case.WindSpeed != 11 || len(resp.Results[2].Loads.A) != 28 {
		t.Errorf("case 2 = %+v", resp.Results[2])
	}

	tests := []struct {
		name string
		body []byte
		want int
	}{
		{"mismatched lengths", []byte(`{"wind_speed":[5,6],"rotor_speed_rpm":[1],"pitch_deg":[0,0]}`), http.StatusBadRequest},
		{"unknown field", []byte(`{"wind":[5]}`), http.StatusBadRequest},
		{"too many cases", conditionsBody(1, 2, 3, 4, 5, 6), http.StatusBadRequest},
		{"all cases fail", conditionsBody(30, 40), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, "POST", "/api/v1/rotors/"+id+"/loads", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	h := testServer(t, &stubSolver{}, Config{})
	id := createRotor(t, h).ID

	w := do(h, "POST", "/api/v1/rotors/"+id+"/evaluate?coefficients=true", conditionsBody(4, 8))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Performance rotor.Performance `json:"performance"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Performance.CP) != 2 || resp.Performance.P[1] != 8000 {
		t.Errorf("performance = %+v", resp.Performance)
	}

	w = do(h, "POST", "/api/v1/rotors/"+id+"/evaluate?coefficients=maybe", conditionsBody(4))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad flag: status = %d, want 400", w.Code)
	}
}

func TestSolverUnavailable(t *testing.T) {
	h := testServer(t, &stubSolver{err: fmt.Errorf("calling: %w", solver.ErrUnavailable)}, Config{})
	id := createRotor(t, h).ID

	for _, path := range []string{"/loads", "/evaluate"} {
		w := do(h, "POST", "/api/v1/rotors/"+id+path, conditionsBody(8))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, w.Code)
		}
	}
}

func TestSolveLimiterPerIP(t *testing.T) {
	s := &stubSolver{started: make(chan struct{}), block: make(chan struct{})}
	h := testServer(t, s, Config{MaxSolvesPerIP: 1})
	id := createRotor(t, h).ID

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		do(h, "POST", "/api/v1/rotors/"+id+"/loads", conditionsBody(8))
	}()
	<-s.started

	// httptest requests share RemoteAddr 192.0.2.1.
	w := do(h, "POST", "/api/v1/rotors/"+id+"/loads", conditionsBody(8))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second concurrent request: status = %d, want 429", w.Code)
	}

	close(s.block)
	wg.Wait()
}

func TestSolveLimiterPerRotor(t *testing.T) {
	s := &stubSolver{started: make(chan struct{}), block: make(chan struct{})}
	h := testServer(t, s, Config{MaxSolvesPerIP: 8, MaxSolvesPerRotor: 1})
	id := createRotor(t, h).ID

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		do(h, "POST", "/api/v1/rotors/"+id+"/loads", conditionsBody(8))
	}()
	<-s.started

	w := do(h, "POST", "/api/v1/rotors/"+id+"/evaluate", conditionsBody(8))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("concurrent solve on the same rotor: status = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rotor limit") {
		t.Errorf("rejection does not name the rotor limit: %s", w.Body.String())
	}

	close(s.block)
	wg.Wait()

	w = do(h, "POST", "/api/v1/rotors/"+id+"/evaluate", conditionsBody(8))
	if w.Code != http.StatusOK {
		t.Errorf("solve after release: status = %d, want 200", w.Code)
	}
}

func TestOptionsAndProbes(t *testing.T) {
	h := testServer(t, &stubSolver{}, Config{Auth: auth.Config{Enabled: true, Token: "tok"}})

	w := do(h, "GET", "/api/v1/options", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("options: status = %d", w.Code)
	}
	var resp struct {
		Pipeline      pipeline.Options `json:"pipeline"`
		SolverWorkers int              `json:"solver_workers"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Pipeline.NSpan != 30 || resp.Pipeline.NAoA != 200 || !resp.Pipeline.Flags.TipLoss || resp.SolverWorkers != 2 {
		t.Errorf("options = %+v", resp)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		if w := do(h, "GET", path, nil); w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
		}
	}
	if w := do(h, "POST", "/api/v1/rotors", fixture(t)); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated create: status = %d, want 401", w.Code)
	}
}
