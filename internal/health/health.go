// Package health serves liveness and readiness probes.
package health

import (
	"net/http"
	"sync/atomic"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readiness is a settable readiness flag. The zero value is not ready.
type Readiness struct {
	ready atomic.Bool
}

// SetReady marks the service ready or draining.
func (rd *Readiness) SetReady(ready bool) {
	rd.ready.Store(ready)
}

// Ready reports the current state.
func (rd *Readiness) Ready() bool {
	return rd.ready.Load()
}

// Readyz returns 200 "ready\n" when ready and 503 otherwise, so load
// balancers stop routing to an instance that is shutting down.
func (rd *Readiness) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !rd.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
