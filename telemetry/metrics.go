// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	FramesCaptured     prometheus.Counter
	FramesSkipped      prometheus.Counter
	APICallsSaved      prometheus.Counter
	Translations       prometheus.Counter
	OverlayClears      prometheus.Counter
	CycleErrors        prometheus.Counter
	DetectionSuccesses prometheus.Counter
	DetectionFailures  prometheus.Counter
	VisionCalls        *prometheus.CounterVec // op, outcome
	VisionRetries      *prometheus.CounterVec // op, class
	HTTPRequests       *prometheus.CounterVec // route, code

	// Histograms (seconds)
	CycleDuration  prometheus.Observer
	VisionDuration *prometheus.HistogramVec // op

	// Gauges
	ServiceRunningGauge prometheus.Gauge
	ProcessingGauge     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{Name: "translator_frames_captured_total", Help: "Frames pulled from the frame source"})
		FramesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "translator_frames_skipped_total", Help: "Poll ticks dropped because a cycle was still in flight"})
		APICallsSaved = promauto.NewCounter(prometheus.CounterOpts{Name: "translator_api_calls_saved_total", Help: "Cycles that stopped at change detection"})
		Translations = promauto.NewCounter(prometheus.CounterOpts{Name: "translator_translations_total", Help: "New translations pushed to the overlay"})
		OverlayClears = promauto.NewCounter(prometheus.CounterOpts{Name: "translator_overlay_clears_total", Help: "Overlay clear calls issued by the pipeline"})
		CycleErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "translator_cycle_errors_total", Help: "Frame cycles abandoned because of an error"})
		DetectionSuccesses = promauto.NewCounter(prometheus.CounterOpts{Name: "translator_detections_succeeded_total", Help: "Successful dialogue box detections"})
		DetectionFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "translator_detections_failed_total", Help: "Failed dialogue box detections"})
		VisionCalls = promauto.NewCounterVec(prometheus.CounterOpts{Name: "translator_vision_calls_total", Help: "Vision API calls by operation and outcome"}, []string{"op", "outcome"})
		VisionRetries = promauto.NewCounterVec(prometheus.CounterOpts{Name: "translator_vision_retries_total", Help: "Vision API retries by operation and error class"}, []string{"op", "class"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "translator_cycle_duration_seconds", Help: "Duration of frame cycles that reached translation", Buckets: prometheus.DefBuckets})
		VisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "translator_vision_call_duration_seconds", Help: "Vision API call duration seconds", Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 15, 25, 30}}, []string{"op"})
		HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "translator_http_requests_total", Help: "HTTP requests by matched route and status code"}, []string{"route", "code"})
		ServiceRunningGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "translator_running", Help: "Translation service running=1 stopped=0"})
		ProcessingGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "translator_processing", Help: "A frame cycle is in flight=1 idle=0"})
	})
}

// Inc increments c if metrics were initialized.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetRunning records whether the translation service is running.
func SetRunning(running bool) { setBool(ServiceRunningGauge, running) }

// SetProcessing records whether a frame cycle is in flight.
func SetProcessing(busy bool) { setBool(ProcessingGauge, busy) }

func setBool(g prometheus.Gauge, v bool) {
	if g == nil {
		return
	}
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

// ObserveVisionCall records one vision API call.
func ObserveVisionCall(op, outcome string, d time.Duration) {
	if VisionCalls != nil {
		VisionCalls.WithLabelValues(op, outcome).Inc()
	}
	if VisionDuration != nil {
		VisionDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncVisionRetry records a retried vision call.
func IncVisionRetry(op, class string) {
	if VisionRetries != nil {
		VisionRetries.WithLabelValues(op, class).Inc()
	}
}

// IncHTTPRequest counts one served request. route is the mux pattern.
func IncHTTPRequest(route string, code int) {
	if HTTPRequests == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
