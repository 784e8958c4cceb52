package api

import (
	"net/http"
	"testing"
)

func TestSolveLimiter(t *testing.T) {
	l := newSolveLimiter(2, 10)

	if l.acquire("1.2.3.4", "r1") != scopeNone || l.acquire("1.2.3.4", "r1") != scopeNone {
		t.Fatal("expected first two acquires to succeed")
	}
	if got := l.acquire("1.2.3.4", "r2"); got != scopeClient {
		t.Errorf("third acquire for the same IP: scope = %q, want %q", got, scopeClient)
	}
	if got := l.acquire("5.6.7.8", "r1"); got != scopeNone {
		t.Errorf("other IP was limited: scope = %q", got)
	}

	l.release("1.2.3.4", "r1")
	if client, rotor := l.inFlight("1.2.3.4", "r1"); client != 1 || rotor != 2 {
		t.Errorf("inFlight = (%d, %d), want (1, 2)", client, rotor)
	}
	l.release("1.2.3.4", "r1")
	l.release("5.6.7.8", "r1")
	if len(l.byClient) != 0 || len(l.byRotor) != 0 || l.total != 0 {
		t.Errorf("released solves still tracked: clients %v rotors %v total %d", l.byClient, l.byRotor, l.total)
	}
}

func TestSolveLimiterPerRotorCap(t *testing.T) {
	l := newSolveLimiter(10, 2)
	for _, ip := range []string{"a", "b"} {
		if got := l.acquire(ip, "hot"); got != scopeNone {
			t.Fatalf("acquire(%s) = %q below the rotor cap", ip, got)
		}
	}
	if got := l.acquire("c", "hot"); got != scopeRotor {
		t.Errorf("acquire above the rotor cap: scope = %q, want %q", got, scopeRotor)
	}
	if got := l.acquire("c", "cold"); got != scopeNone {
		t.Errorf("other rotor was limited: scope = %q", got)
	}

	// A rejected acquire must not leak a slot for the client.
	if client, _ := l.inFlight("c", "hot"); client != 1 {
		t.Errorf("client c in flight = %d, want 1", client)
	}
}

func TestSolveLimiterGlobalCap(t *testing.T) {
	l := newSolveLimiter(10, 10)
	l.maxTotal = 3
	for _, ip := range []string{"a", "b", "c"} {
		if got := l.acquire(ip, ip); got != scopeNone {
			t.Fatalf("acquire(%s) = %q below the global cap", ip, got)
		}
	}
	if got := l.acquire("d", "d"); got != scopeServer {
		t.Errorf("acquire above the global cap: scope = %q, want %q", got, scopeServer)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		trust      bool
		want       string
	}{
		{"remote addr with port", "", "", "192.168.1.1:12345", false, "192.168.1.1"},
		{"ipv6 remote addr", "", "", "[::1]:12345", false, "::1"},
		{"remote addr without port", "", "", "192.168.1.1", false, "192.168.1.1"},
		{"headers ignored without trust", "1.2.3.4", "5.6.7.8", "10.0.0.1:1234", false, "10.0.0.1"},
		{"XFF single IP", "1.2.3.4", "", "10.0.0.1:1234", true, "1.2.3.4"},
		{"XFF multiple IPs takes first", "1.2.3.4, 10.0.0.1", "", "10.0.0.3:1234", true, "1.2.3.4"},
		{"X-Real-IP fallback", "", "5.6.7.8", "10.0.0.1:1234", true, "5.6.7.8"},
		{"XFF takes precedence", "1.2.3.4", "5.6.7.8", "10.0.0.1:1234", true, "1.2.3.4"},
		{"empty XFF entry falls through", " , 9.9.9.9", "", "10.0.0.1:1234", true, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(r, tt.trust); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
