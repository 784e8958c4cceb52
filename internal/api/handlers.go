package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/star/rotorprep/internal/cache"
	"github.com/star/rotorprep/internal/diag"
	"github.com/star/rotorprep/internal/rotor"
	"github.com/star/rotorprep/internal/solver"
	"github.com/star/rotorprep/internal/turbine"
)

// maxConditionsBytes caps JSON condition bodies.
const maxConditionsBytes = 1 << 20

type handlers struct {
	cfg     Config
	deps    Deps
	limiter *solveLimiter
	logger  *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type rotorSummary struct {
	ID          string            `json:"id"`
	Cached      bool              `json:"cached"`
	CreatedAt   time.Time         `json:"created_at"`
	Stations    int               `json:"stations"`
	AoAPoints   int               `json:"aoa_points"`
	ReGrid      []float64         `json:"re_grid"`
	Rhub        float64           `json:"rhub"`
	Rtip        float64           `json:"rtip"`
	HubHeight   float64           `json:"hub_height"`
	Blades      int               `json:"blades"`
	R           []float64         `json:"r"`
	Thickness   []float64         `json:"thickness"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
}

func summarize(e *cache.Entry, cached bool) rotorSummary {
	r := e.Result.Rotor
	diags := e.Diagnostics
	if diags == nil {
		diags = []diag.Diagnostic{}
	}
	return rotorSummary{
		ID:          e.ID,
		Cached:      cached,
		CreatedAt:   e.CreatedAt,
		Stations:    r.Stations(),
		AoAPoints:   len(e.Result.Tables.AoA),
		ReGrid:      e.Result.Tables.Re,
		Rhub:        r.Rhub,
		Rtip:        r.Rtip,
		HubHeight:   r.HubHeight,
		Blades:      r.Blades,
		R:           r.R,
		Thickness:   e.Result.Thickness,
		Diagnostics: diags,
	}
}

// options serves GET /api/v1/options.
func (h *handlers) options(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pipeline":             h.deps.Builder.Options(),
		"solver_workers":       h.deps.Pool.Workers(),
		"max_cases":            h.cfg.MaxCases,
		"max_solves_per_ip":    h.cfg.MaxSolvesPerIP,
		"max_solves_per_rotor": h.cfg.MaxSolvesPerRotor,
	})
}

// createRotor serves POST /api/v1/rotors. The body is a turbine YAML
// document; identical documents map to the same cached rotor.
func (h *handlers) createRotor(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	opts := h.deps.Builder.Options()
	id := cache.Key(body, fmt.Sprintf("%+v", opts))
	if e := h.deps.Cache.Get(id); e != nil {
		writeJSON(w, http.StatusOK, summarize(e, true))
		return
	}

	doc, err := turbine.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := &diag.Recorder{}
	res, err := h.deps.Builder.Build(doc, diag.Multi(diag.NewLogReporter(h.logger), rec))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e := &cache.Entry{ID: id, Result: res, Options: opts, Diagnostics: rec.Diagnostics()}
	h.deps.Cache.Put(e)
	writeJSON(w, http.StatusCreated, summarize(e, false))
}

// lookup resolves the {id} path value, writing 404 when absent.
func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) *cache.Entry {
	e := h.deps.Cache.Get(r.PathValue("id"))
	if e == nil {
		writeError(w, http.StatusNotFound, "rotor not found")
	}
	return e
}

// getRotor serves GET /api/v1/rotors/{id}.
func (h *handlers) getRotor(w http.ResponseWriter, r *http.Request) {
	if e := h.lookup(w, r); e != nil {
		writeJSON(w, http.StatusOK, summarize(e, true))
	}
}

// coefficients serves GET /api/v1/rotors/{id}/stations/{station}/coefficients?alpha=<deg>&re=<Re>.
func (h *handlers) coefficients(w http.ResponseWriter, r *http.Request) {
	e := h.lookup(w, r)
	if e == nil {
		return
	}
	rot := e.Result.Rotor

	station, err := strconv.Atoi(r.PathValue("station"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "station must be an integer")
		return
	}
	if station < 0 || station >= rot.Stations() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("station %d out of range [0, %d)", station, rot.Stations()))
		return
	}

	alphaDeg, err := finiteQuery(r, "alpha")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	re, err := finiteQuery(r, "re")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cl, cd, cm := rot.Airfoils[station].Evaluate(alphaDeg*math.Pi/180, re)
	writeJSON(w, http.StatusOK, map[string]any{
		"station":   station,
		"r":         rot.R[station],
		"alpha_deg": alphaDeg,
		"re":        re,
		"cl":        cl,
		"cd":        cd,
		"cm":        cm,
	})
}

func finiteQuery(r *http.Request, name string) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s parameter, must be a finite number", name)
	}
	return f, nil
}

// decodeConditions reads and validates a JSON rotor.Conditions body.
func (h *handlers) decodeConditions(w http.ResponseWriter, r *http.Request) (rotor.Conditions, bool) {
	var conds rotor.Conditions
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConditionsBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&conds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid conditions: "+err.Error())
		return conds, false
	}
	if err := conds.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return conds, false
	}
	if conds.Len() > h.cfg.MaxCases {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     fmt.Sprintf("%d operating cases exceed the per-request limit", conds.Len()),
			"max_cases": h.cfg.MaxCases,
		})
		return conds, false
	}
	return conds, true
}

// solverStatus maps a solver failure to an HTTP status.
func solverStatus(err error) int {
	switch {
	case errors.Is(err, solver.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

type caseResult struct {
	Index int                     `json:"index"`
	Case  rotor.Case              `json:"case"`
	Loads *rotor.DistributedLoads `json:"loads,omitempty"`
	Error string                  `json:"error,omitempty"`
}

// loads serves POST /api/v1/rotors/{id}/loads. Cases fail independently;
// the request fails only when every case does.
func (h *handlers) loads(w http.ResponseWriter, r *http.Request) {
	e := h.lookup(w, r)
	if e == nil {
		return
	}
	conds, ok := h.decodeConditions(w, r)
	if !ok {
		return
	}

	out, err := h.deps.Pool.LoadsBatch(r.Context(), h.deps.Solver, e.Result.Rotor, conds)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := make([]caseResult, len(out))
	var firstErr error
	failed := 0
	for i, cl := range out {
		results[i] = caseResult{Index: cl.Index, Case: cl.Case, Loads: cl.Loads}
		if cl.Err != nil {
			results[i].Error = cl.Err.Error()
			if firstErr == nil {
				firstErr = cl.Err
			}
			failed++
		}
	}
	if failed == len(out) {
		writeError(w, solverStatus(firstErr), firstErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      e.ID,
		"failed":  failed,
		"results": results,
	})
}

// evaluate serves POST /api/v1/rotors/{id}/evaluate?coefficients=<bool>.
func (h *handlers) evaluate(w http.ResponseWriter, r *http.Request) {
	e := h.lookup(w, r)
	if e == nil {
		return
	}
	coefficients := false
	if v := r.URL.Query().Get("coefficients"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid coefficients parameter, must be a boolean")
			return
		}
		coefficients = b
	}
	conds, ok := h.decodeConditions(w, r)
	if !ok {
		return
	}

	perf, err := rotor.Evaluate(r.Context(), h.deps.Solver, e.Result.Rotor, conds, coefficients)
	if err != nil {
		h.logger.Warn("evaluate failed", "rotor_id", e.ID, "error", err)
		writeError(w, solverStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          e.ID,
		"performance": perf,
	})
}

// limit bounds concurrent solver requests per client IP and per rotor.
func (h *handlers) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, h.cfg.TrustProxy)
		id := r.PathValue("id")
		if scope := h.limiter.acquire(ip, id); scope != scopeNone {
			h.logger.Debug("solve rejected", "scope", string(scope), "client_ip", ip, "rotor_id", id)
			writeError(w, http.StatusTooManyRequests, fmt.Sprintf("too many concurrent solver requests (%s limit)", scope))
			return
		}
		defer h.limiter.release(ip, id)
		next(w, r)
	}
}
