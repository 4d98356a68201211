// Package server exposes the HTTP API: health, metrics, the translation
// control surface and the overlay event stream consumed by browser sources.
// It injects correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/dialogue-tender/capture"
	"github.com/onnwee/dialogue-tender/config"
	"github.com/onnwee/dialogue-tender/db"
	"github.com/onnwee/dialogue-tender/overlay"
	"github.com/onnwee/dialogue-tender/telemetry"
	"github.com/onnwee/dialogue-tender/translation"
)

// Deps are the collaborators the HTTP layer drives. History and Push are
// optional.
type Deps struct {
	Service *translation.Service
	Source  translation.FrameSource
	Sink    overlay.Sink
	Hub     *overlay.Hub
	History *db.HistoryStore
	Push    *capture.Static
	Config  *config.Config
}

// NewMux returns the HTTP handler with all routes.
// ctx outlives requests: it bounds the translation loops started over HTTP
// and the rate limiter cleanup goroutine.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	authCfg := newAuthConfig(cfg)
	corsCfg := newCORSConfig(cfg)
	rateLimiter := newIPRateLimiter(ctx, newRateLimiterConfig(cfg))

	h := NewHandlers(ctx, deps)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)

	mux.HandleFunc("GET /translation/status", h.HandleStatus)
	mux.HandleFunc("GET /translation/history", h.HandleHistory)
	mux.HandleFunc("POST /translation/start", h.HandleStart)
	mux.HandleFunc("POST /translation/stop", h.HandleStop)
	mux.HandleFunc("POST /translation/configure", h.HandleConfigure)
	mux.HandleFunc("POST /translation/force", h.HandleForce)
	mux.HandleFunc("POST /translation/reset", h.HandleReset)

	mux.HandleFunc("GET /overlay/state", h.HandleOverlayState)
	mux.HandleFunc("GET /overlay/events", h.HandleOverlayEvents)
	mux.Handle("POST /frames", adminAuth(http.HandlerFunc(h.HandlePushFrame), authCfg))

	protected := adminAuth(rateLimitMiddleware(mux, rateLimiter), authCfg)

	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Mutations on the control surface need auth and are rate limited.
		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/translation/") {
			protected.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		req := r.WithContext(ctx)
		selectiveHandler.ServeHTTP(wrappedWriter, req)

		// The mux records the matched pattern on req.
		telemetry.IncHTTPRequest(req.Pattern, wrappedWriter.statusCode)
		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
		if wrappedWriter.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", wrappedWriter.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, deps Deps) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return serve(ctx, ln, deps)
}

func serve(ctx context.Context, ln net.Listener, deps Deps) error {
	srv := &http.Server{
		Handler:      NewMux(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", ln.Addr().String()), slog.String("component", "http"))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
