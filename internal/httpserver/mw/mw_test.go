package mw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/auth"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr", "192.0.2.1:5000", nil, false, "192.0.2.1"},
		{"ipv6 remote addr", "[2001:db8::1]:5000", nil, false, "2001:db8::1"},
		{"proxy headers ignored", "192.0.2.1:5000", map[string]string{"X-Forwarded-For": "198.51.100.7"}, false, "192.0.2.1"},
		{"cloudflare first", "127.0.0.1:1", map[string]string{"CF-Connecting-IP": "203.0.113.9", "X-Forwarded-For": "198.51.100.7"}, true, "203.0.113.9"},
		{"left-most forwarded", "127.0.0.1:1", map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"}, true, "198.51.100.7"},
		{"real ip", "127.0.0.1:1", map[string]string{"X-Real-IP": "198.51.100.8"}, true, "198.51.100.8"},
		{"no headers", "127.0.0.1:1", nil, true, "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAllowOnlyCIDRS(t *testing.T) {
	h := AllowOnlyCIDRS([]string{"10.0.0.0/8", "192.0.2.1", "not-an-ip"}, false, logger.Nop())(okHandler)

	tests := []struct {
		remote string
		want   int
	}{
		{"10.1.2.3:80", http.StatusOK},
		{"192.0.2.1:80", http.StatusOK},
		{"[::ffff:10.0.0.1]:80", http.StatusOK},
		{"192.0.2.2:80", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		r.RemoteAddr = tt.remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.remote, w.Code, tt.want)
		}
	}
}

func TestAllowOnlyCIDRSEmptyIsPassthrough(t *testing.T) {
	h := AllowOnlyCIDRS(nil, false, logger.Nop())(okHandler)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestMatchHost(t *testing.T) {
	tests := []struct {
		host, pattern string
		want          bool
	}{
		{"inv.example.com", "inv.example.com", true},
		{"a.example.com", "*.example.com", true},
		{"example.com", "*.example.com", false},
		{"badexample.com", "*.example.com", false},
		{"other.com", "inv.example.com", false},
	}
	for _, tt := range tests {
		if got := matchHost(tt.host, tt.pattern); got != tt.want {
			t.Errorf("matchHost(%q, %q) = %v, want %v", tt.host, tt.pattern, got, tt.want)
		}
	}
}

func TestEnforceHost(t *testing.T) {
	h := EnforceHost([]string{"inv.example.com"}, logger.Nop())(okHandler)

	r := httptest.NewRequest(http.MethodPost, "/reload", nil)
	r.Host = "INV.example.com:8080"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("allowed host: status = %d, want 200", w.Code)
	}

	r.Host = "evil.example.com"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("other host: status = %d, want 403", w.Code)
	}
}

func TestRateLimitRefills(t *testing.T) {
	clock := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	h := RateLimit(RateLimitConfig{
		Burst:     2,
		PerMinute: 60,
		Now:       func() time.Time { return clock },
	}, logger.Nop())(okHandler)

	hit := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := hit("192.0.2.1:1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
	w := hit("192.0.2.1:1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}

	if w := hit("192.0.2.2:1"); w.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want 200", w.Code)
	}

	clock = clock.Add(time.Second)
	if w := hit("192.0.2.1:1"); w.Code != http.StatusOK {
		t.Errorf("after refill: status = %d, want 200", w.Code)
	}
}

func TestLimiterSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	l := newLimiter(RateLimitConfig{PerMinute: 10, IdleTTL: time.Minute, Now: func() time.Time { return now }})

	l.allow("a", now)
	l.allow("b", now.Add(2*time.Minute))
	if _, ok := l.buckets["a"]; ok {
		t.Error("idle bucket should have been swept")
	}
}

type fakeResolver struct {
	user auth.User
	err  error
}

func (f fakeResolver) CurrentUser(_ context.Context, token string) (auth.User, error) {
	if token != "good" {
		return auth.User{}, auth.ErrInvalidToken
	}
	return f.user, f.err
}

func TestRequireUser(t *testing.T) {
	var seen auth.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFrom(r.Context())
	})

	tests := []struct {
		name     string
		header   string
		resolver fakeResolver
		want     int
	}{
		{"missing header", "", fakeResolver{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic good", fakeResolver{}, http.StatusUnauthorized},
		{"bad token", "Bearer bad", fakeResolver{}, http.StatusUnauthorized},
		{"store failure", "Bearer good", fakeResolver{err: errors.New("down")}, http.StatusInternalServerError},
		{"valid", "bearer good", fakeResolver{user: auth.User{ID: "u1"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = auth.User{}
			r := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			RequireUser(tt.resolver, logger.Nop())(next).ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && seen.ID != "u1" {
				t.Errorf("user in context = %+v", seen)
			}
		})
	}
}

func TestCORSWithoutOriginsAddsNothing(t *testing.T) {
	h := CORS(nil)(okHandler)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want none", got)
	}
}
