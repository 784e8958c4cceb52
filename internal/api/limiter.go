package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

// limitScope names the bound that rejected a solve.
type limitScope string

const (
	scopeNone   limitScope = ""
	scopeClient limitScope = "client"
	scopeRotor  limitScope = "rotor"
	scopeServer limitScope = "server"
)

// solveLimiter bounds concurrent solver requests per client IP, per cached
// rotor and across the server. A rotor is shipped to the solver in full on
// every call, so one hot rotor can saturate the solver on its own.
type solveLimiter struct {
	mu          sync.Mutex
	byClient    map[string]int
	byRotor     map[string]int
	total       int
	maxPerIP    int
	maxPerRotor int
	maxTotal    int
}

func newSolveLimiter(maxPerIP, maxPerRotor int) *solveLimiter {
	return &solveLimiter{
		byClient:    make(map[string]int),
		byRotor:     make(map[string]int),
		maxPerIP:    maxPerIP,
		maxPerRotor: maxPerRotor,
		maxTotal:    256,
	}
}

// acquire registers a solve of rotorID for ip. It returns the scope that
// is full, or scopeNone when the solve may proceed.
func (l *solveLimiter) acquire(ip, rotorID string) limitScope {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.total >= l.maxTotal:
		return scopeServer
	case l.byClient[ip] >= l.maxPerIP:
		return scopeClient
	case l.byRotor[rotorID] >= l.maxPerRotor:
		return scopeRotor
	}
	l.byClient[ip]++
	l.byRotor[rotorID]++
	l.total++
	return scopeNone
}

// release undoes a successful acquire.
func (l *solveLimiter) release(ip, rotorID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total--
	decrement(l.byClient, ip)
	decrement(l.byRotor, rotorID)
}

func decrement(m map[string]int, key string) {
	m[key]--
	if m[key] <= 0 {
		delete(m, key)
	}
}

// inFlight returns the solves running for ip and for rotorID.
func (l *solveLimiter) inFlight(ip, rotorID string) (client, rotor int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byClient[ip], l.byRotor[rotorID]
}

// clientIP extracts the client IP address from the request. With
// trustProxy the leftmost X-Forwarded-For entry, then X-Real-IP, take
// precedence over RemoteAddr.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
