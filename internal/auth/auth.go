// Package auth enforces optional Bearer-token authentication.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz":        true,
	"/readyz":         true,
	"/metrics":        true,
	"/api/v1/options": true,
}

// isExempt returns true if the request is exempt from auth.
func isExempt(r *http.Request) bool {
	return r.Method == http.MethodGet && exemptPaths[r.URL.Path]
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-exempt paths when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(r) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")

			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="rotorprep"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
