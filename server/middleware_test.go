package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/dialogue-tender/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuth(t *testing.T) {
	basic := config.Config{AdminUsername: "admin", AdminPassword: "secret123"}
	token := config.Config{AdminToken: "tok-12345"}
	both := config.Config{AdminUsername: "admin", AdminPassword: "secret123", AdminToken: "tok-12345"}

	tests := []struct {
		name     string
		cfg      config.Config
		user     string
		pass     string
		token    string
		wantCode int
	}{
		{name: "open when unconfigured", wantCode: http.StatusOK},
		{name: "basic ok", cfg: basic, user: "admin", pass: "secret123", wantCode: http.StatusOK},
		{name: "basic wrong user", cfg: basic, user: "root", pass: "secret123", wantCode: http.StatusUnauthorized},
		{name: "basic wrong password", cfg: basic, user: "admin", pass: "nope", wantCode: http.StatusUnauthorized},
		{name: "basic missing", cfg: basic, wantCode: http.StatusUnauthorized},
		{name: "token ok", cfg: token, token: "tok-12345", wantCode: http.StatusOK},
		{name: "token wrong", cfg: token, token: "tok-99999", wantCode: http.StatusUnauthorized},
		{name: "token wins over bad basic", cfg: both, token: "tok-12345", user: "x", pass: "y", wantCode: http.StatusOK},
		{name: "basic still accepted with token configured", cfg: both, user: "admin", pass: "secret123", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := adminAuth(okHandler(), newAuthConfig(&tt.cfg))
			req := httptest.NewRequest(http.MethodPost, "/translation/start", nil)
			if tt.user != "" || tt.pass != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			if tt.token != "" {
				req.Header.Set("X-Admin-Token", tt.token)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate on 401")
			}
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 2,
		window:        100 * time.Millisecond,
	})

	for i, want := range []bool{true, true, false} {
		if got := limiter.allow("192.168.1.1"); got != want {
			t.Fatalf("request %d allowed = %v, want %v", i+1, got, want)
		}
	}
	if !limiter.allow("192.168.1.2") {
		t.Fatal("second client should have its own budget")
	}

	time.Sleep(150 * time.Millisecond)
	if !limiter.allow("192.168.1.1") {
		t.Fatal("budget should reset after the window")
	}
}

func TestIPRateLimiterRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{enabled: true, requestsPerIP: 1, window: time.Minute})
	limiter.now = func() time.Time { return now }

	if ok, _ := limiter.take("203.0.113.7"); !ok {
		t.Fatal("first request denied")
	}
	now = now.Add(45 * time.Second)
	ok, retry := limiter.take("203.0.113.7")
	if ok || retry != 15*time.Second {
		t.Fatalf("take = %v, %v; want false, 15s", ok, retry)
	}

	now = now.Add(3 * time.Minute)
	limiter.sweep()
	if n := len(limiter.clients); n != 0 {
		t.Fatalf("sweep left %d clients", n)
	}
}

func TestIPRateLimiterDisabled(t *testing.T) {
	limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{requestsPerIP: 1, window: time.Second})
	for i := 0; i < 50; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Fatalf("request %d denied with limiter disabled", i+1)
		}
	}
}

// Requests that resolve to the same client share one budget regardless of
// source port or proxy hops.
func TestRateLimitMiddleware(t *testing.T) {
	type hit struct{ remote, forwarded string }
	tests := []struct {
		name string
		hits [3]hit
	}{
		{name: "ipv4", hits: [3]hit{{"192.168.1.1:1", ""}, {"192.168.1.1:2", ""}, {"192.168.1.1:3", ""}}},
		{name: "ipv6", hits: [3]hit{{"[2001:db8::1]:1", ""}, {"[2001:db8::1]:2", ""}, {"[2001:db8::1]:3", ""}}},
		{name: "forwarded", hits: [3]hit{
			{"10.0.0.1:1", "203.0.113.1, 10.0.0.2"},
			{"10.0.0.3:1", "203.0.113.1"},
			{"10.0.0.1:9", "203.0.113.1, 10.0.0.9"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := newIPRateLimiter(context.Background(), &rateLimiterConfig{
				enabled:       true,
				requestsPerIP: 2,
				window:        time.Minute,
			})
			h := rateLimitMiddleware(okHandler(), limiter)

			var rr *httptest.ResponseRecorder
			for i, hit := range tt.hits {
				req := httptest.NewRequest(http.MethodPost, "/translation/force", nil)
				req.RemoteAddr = hit.remote
				if hit.forwarded != "" {
					req.Header.Set("X-Forwarded-For", hit.forwarded)
				}
				rr = httptest.NewRecorder()
				h.ServeHTTP(rr, req)
				if i < 2 && rr.Code != http.StatusOK {
					t.Fatalf("hit %d: status %d, want 200", i+1, rr.Code)
				}
			}
			if rr.Code != http.StatusTooManyRequests {
				t.Fatalf("third hit: status %d, want 429", rr.Code)
			}
			if got := rr.Header().Get("Retry-After"); got != "60" {
				t.Errorf("Retry-After = %q, want 60", got)
			}
		})
	}
}

func TestWithCORSConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.Config
		origin    string
		wantAllow string
		wantCreds bool
	}{
		{name: "dev allows any origin", origin: "https://example.com", wantAllow: "*"},
		{
			name:      "listed origin",
			cfg:       config.Config{Env: "production", CORSAllowedOrigins: "https://example.com,https://app.example.com"},
			origin:    "https://app.example.com",
			wantAllow: "https://app.example.com",
			wantCreds: true,
		},
		{
			name:   "unlisted origin",
			cfg:    config.Config{Env: "production", CORSAllowedOrigins: "https://example.com"},
			origin: "https://evil.com",
		},
		{
			name:      "wildcard subdomain",
			cfg:       config.Config{Env: "production", CORSAllowedOrigins: "*.example.com"},
			origin:    "https://overlay.example.com",
			wantAllow: "https://overlay.example.com",
			wantCreds: true,
		},
		{
			name:      "wildcard covers the apex",
			cfg:       config.Config{Env: "production", CORSAllowedOrigins: "*.example.com"},
			origin:    "https://example.com",
			wantAllow: "https://example.com",
			wantCreds: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := withCORSConfig(okHandler(), newCORSConfig(&tt.cfg))
			req := httptest.NewRequest(http.MethodGet, "/overlay/state", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.wantCreds && rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected Allow-Credentials: true")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight reached the handler")
	}), newCORSConfig(&config.Config{}))

	req := httptest.NewRequest(http.MethodOptions, "/translation/start", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("missing Allow-Headers")
	}
}

func TestNewAuthConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Config
		wantEnabled bool
	}{
		{name: "no auth configured", wantEnabled: false},
		{name: "username without password", cfg: config.Config{AdminUsername: "admin"}, wantEnabled: false},
		{name: "basic auth only", cfg: config.Config{AdminUsername: "admin", AdminPassword: "secret"}, wantEnabled: true},
		{name: "token auth only", cfg: config.Config{AdminToken: "test-token"}, wantEnabled: true},
		{
			name:        "both auth methods",
			cfg:         config.Config{AdminUsername: "admin", AdminPassword: "secret", AdminToken: "test-token"},
			wantEnabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newAuthConfig(&tt.cfg)
			if cfg.enabled != tt.wantEnabled {
				t.Errorf("expected enabled=%v, got %v", tt.wantEnabled, cfg.enabled)
			}
		})
	}
}

func TestNewCORSConfig(t *testing.T) {
	tests := []struct {
		name           string
		cfg            config.Config
		wantPermissive bool
		wantOriginsLen int
	}{
		{name: "default dev mode", wantPermissive: true},
		{name: "explicit dev mode", cfg: config.Config{Env: "dev"}, wantPermissive: true},
		{name: "production mode", cfg: config.Config{Env: "production"}, wantPermissive: false},
		{
			name:           "production with allowed origins",
			cfg:            config.Config{Env: "production", CORSAllowedOrigins: "https://example.com, https://app.example.com,"},
			wantPermissive: false,
			wantOriginsLen: 2,
		},
		{
			name:           "explicit permissive override",
			cfg:            config.Config{Env: "production", CORSPermissive: "1"},
			wantPermissive: true,
		},
		{
			name:           "explicit restrictive override in dev",
			cfg:            config.Config{Env: "dev", CORSPermissive: "false"},
			wantPermissive: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newCORSConfig(&tt.cfg)
			if cfg.permissive != tt.wantPermissive {
				t.Errorf("expected permissive=%v, got %v", tt.wantPermissive, cfg.permissive)
			}
			if len(cfg.allowedOrigins) != tt.wantOriginsLen {
				t.Errorf("expected %d allowed origins, got %d", tt.wantOriginsLen, len(cfg.allowedOrigins))
			}
		})
	}
}

func TestNewRateLimiterConfigDefaults(t *testing.T) {
	cfg := newRateLimiterConfig(&config.Config{RateLimitEnabled: true})
	if !cfg.enabled {
		t.Error("expected limiter enabled")
	}
	if cfg.requestsPerIP != 30 {
		t.Errorf("requestsPerIP = %d, want 30", cfg.requestsPerIP)
	}
	if cfg.window != time.Minute {
		t.Errorf("window = %v, want 1m", cfg.window)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "ipv6 with port", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "forwarded list", remoteAddr: "10.0.0.1:1", forwarded: "203.0.113.1, 10.0.0.2", want: "203.0.113.1"},
		{name: "forwarded ipv6 without port", remoteAddr: "10.0.0.1:1", forwarded: "2001:db8::42", want: "2001:db8::42"},
		{name: "forwarded ipv4 without port", remoteAddr: "10.0.0.1:1", forwarded: "192.0.2.1", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/translation/start", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name           string
		origin         string
		allowedOrigins []string
		want           bool
	}{
		{
			name:           "exact match",
			origin:         "https://example.com",
			allowedOrigins: []string{"https://example.com", "https://other.com"},
			want:           true,
		},
		{
			name:           "no match",
			origin:         "https://evil.com",
			allowedOrigins: []string{"https://example.com"},
			want:           false,
		},
		{
			name:           "wildcard subdomain match",
			origin:         "https://app.example.com",
			allowedOrigins: []string{"*.example.com"},
			want:           true,
		},
		{
			name:           "wildcard subdomain deeper match",
			origin:         "https://api.v2.example.com",
			allowedOrigins: []string{"*.example.com"},
			want:           true,
		},
		{
			name:           "wildcard does not match parent",
			origin:         "https://example.com",
			allowedOrigins: []string{"*.example.com"},
			want:           true, // Special case: matches parent too
		},
		{
			name:           "http vs https mismatch",
			origin:         "http://example.com",
			allowedOrigins: []string{"https://example.com"},
			want:           false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isOriginAllowed(tt.origin, tt.allowedOrigins)
			if got != tt.want {
				t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowedOrigins, got, tt.want)
			}
		})
	}
}

func TestParseIntQuery(t *testing.T) {
	tests := []struct {
		input      string
		defaultVal int
		want       int
	}{
		{"123", 0, 123},
		{"", 42, 42},
		{"invalid", 42, 42},
		{"-1", 0, -1},
		{"0", 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/translation/history?limit="+tt.input, nil)
			got := parseIntQuery(req, "limit", tt.defaultVal)
			if got != tt.want {
				t.Errorf("parseIntQuery(%q, %d) = %d, want %d", tt.input, tt.defaultVal, got, tt.want)
			}
		})
	}
}
