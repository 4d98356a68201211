package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/dialogue-tender/config"
)

// authConfig holds admin credentials for the control endpoints
type authConfig struct {
	adminUsername string
	adminPassword string
	adminToken    string
	enabled       bool
}

// newAuthConfig builds the auth configuration from the loaded settings
func newAuthConfig(cfg *config.Config) *authConfig {
	enabled := (cfg.AdminUsername != "" && cfg.AdminPassword != "") || cfg.AdminToken != ""
	if !enabled {
		slog.Warn("Admin authentication not configured - control endpoints are UNPROTECTED. Set ADMIN_USERNAME+ADMIN_PASSWORD or ADMIN_TOKEN for production")
	}
	return &authConfig{
		adminUsername: cfg.AdminUsername,
		adminPassword: cfg.AdminPassword,
		adminToken:    cfg.AdminToken,
		enabled:       enabled,
	}
}

// authorized reports whether r carries the admin token or matching basic
// credentials. Comparisons are constant time.
func (c *authConfig) authorized(r *http.Request) bool {
	if c.adminToken != "" {
		if token := r.Header.Get("X-Admin-Token"); token != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(c.adminToken)) == 1 {
			return true
		}
	}
	if c.adminUsername == "" || c.adminPassword == "" {
		return false
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.adminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(c.adminPassword)) == 1
	return userOK && passOK
}

// adminAuth guards the control surface. It is a pass-through when no
// credentials are configured.
func adminAuth(next http.Handler, cfg *authConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cfg.enabled || cfg.authorized(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="dialogue-tender admin"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		slog.Warn("admin auth failed", slog.String("path", r.URL.Path), slog.String("ip", clientIP(r)), slog.String("component", "http"))
	})
}

// rateLimiterConfig holds rate limiting configuration
type rateLimiterConfig struct {
	enabled       bool
	requestsPerIP int           // Max requests per IP per window
	window        time.Duration // Time window for rate limiting
}

func newRateLimiterConfig(cfg *config.Config) *rateLimiterConfig {
	rl := &rateLimiterConfig{
		enabled:       cfg.RateLimitEnabled,
		requestsPerIP: cfg.RateLimitRequestsPerIP,
		window:        cfg.RateLimitWindow,
	}
	if rl.requestsPerIP <= 0 {
		rl.requestsPerIP = 30
	}
	if rl.window <= 0 {
		rl.window = time.Minute
	}
	return rl
}

// ipRateLimiter counts requests per client in fixed windows.
type ipRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateWindow
	cfg     *rateLimiterConfig
	now     func() time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

// newIPRateLimiter starts a sweeper that drops idle clients until ctx ends.
func newIPRateLimiter(ctx context.Context, cfg *rateLimiterConfig) *ipRateLimiter {
	rl := &ipRateLimiter{
		clients: make(map[string]*rateWindow),
		cfg:     cfg,
		now:     time.Now,
	}
	go rl.sweepLoop(ctx)
	return rl
}

func (rl *ipRateLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep forgets clients whose window ended more than one window ago.
func (rl *ipRateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-2 * rl.cfg.window)
	for ip, w := range rl.clients {
		if w.start.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// take spends one request from ip's budget. When the budget is gone it
// returns false and the time until the window resets.
func (rl *ipRateLimiter) take(ip string) (bool, time.Duration) {
	if !rl.cfg.enabled {
		return true, 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[ip]
	if !ok || now.Sub(w.start) >= rl.cfg.window {
		rl.clients[ip] = &rateWindow{start: now, count: 1}
		return true, 0
	}
	if w.count >= rl.cfg.requestsPerIP {
		return false, w.start.Add(rl.cfg.window).Sub(now)
	}
	w.count++
	return true, 0
}

func (rl *ipRateLimiter) allow(ip string) bool {
	ok, _ := rl.take(ip)
	return ok
}

// clientIP returns the caller's address without port, preferring the first
// X-Forwarded-For entry.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			ip = strings.TrimSpace(forwarded[:idx])
		} else {
			ip = strings.TrimSpace(forwarded)
		}
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return strings.Trim(ip, "[]")
}

// rateLimitMiddleware applies rate limiting to control endpoints
func rateLimitMiddleware(next http.Handler, limiter *ipRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, retry := limiter.take(ip)
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			http.Error(w, "Too Many Requests - rate limit exceeded", http.StatusTooManyRequests)
			slog.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path), slog.String("component", "http"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsConfig holds CORS configuration
type corsConfig struct {
	allowedOrigins []string
	permissive     bool // dev mode allows all origins
}

// newCORSConfig is permissive in dev and restricted elsewhere unless
// CORS_PERMISSIVE overrides it.
func newCORSConfig(cfg *config.Config) *corsConfig {
	mode := strings.ToLower(cfg.Env)
	permissive := mode == "" || mode == "dev" || mode == "development"
	if v := strings.ToLower(cfg.CORSPermissive); v != "" {
		permissive = v == "1" || v == "true"
	}

	allowedOrigins := []string{}
	for _, origin := range strings.Split(cfg.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins = append(allowedOrigins, origin)
		}
	}

	if !permissive && len(allowedOrigins) == 0 {
		slog.Warn("CORS restricted mode enabled but no CORS_ALLOWED_ORIGINS configured - all CORS requests will be blocked")
	}
	return &corsConfig{
		allowedOrigins: allowedOrigins,
		permissive:     permissive,
	}
}

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-Admin-Token, X-Correlation-ID"
)

// withCORSConfig wraps a handler with CORS headers based on configuration
func withCORSConfig(next http.Handler, cfg *corsConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if cfg.permissive {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
		} else if origin != "" && isOriginAllowed(origin, cfg.allowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed checks if an origin is in the allowed list.
// "*.example.com" matches any subdomain and the bare domain.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
		if strings.HasPrefix(allowed, "*.") {
			domain := allowed[2:]
			if strings.HasSuffix(origin, "."+domain) || origin == "https://"+domain || origin == "http://"+domain {
				return true
			}
		}
	}
	return false
}
