package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if CycleDuration == nil {
		t.Error("CycleDuration histogram not initialized")
	}
	if VisionDuration == nil {
		t.Error("VisionDuration histogram not initialized")
	}
	if FramesSkipped == nil || APICallsSaved == nil || DetectionFailures == nil {
		t.Error("counters not initialized")
	}
}

func TestObserveVisionCall(t *testing.T) {
	Init()
	before := testutil.ToFloat64(VisionCalls.WithLabelValues("detect", "ok"))
	ObserveVisionCall("detect", "ok", 250*time.Millisecond)
	after := testutil.ToFloat64(VisionCalls.WithLabelValues("detect", "ok"))
	if after != before+1 {
		t.Errorf("vision calls = %v, want %v", after, before+1)
	}
}

func TestIncVisionRetry(t *testing.T) {
	Init()
	before := testutil.ToFloat64(VisionRetries.WithLabelValues("translate_text", "retryable"))
	IncVisionRetry("translate_text", "retryable")
	if got := testutil.ToFloat64(VisionRetries.WithLabelValues("translate_text", "retryable")); got != before+1 {
		t.Errorf("vision retries = %v, want %v", got, before+1)
	}
}

func TestGauges(t *testing.T) {
	Init()
	SetRunning(true)
	if v := testutil.ToFloat64(ServiceRunningGauge); v != 1 {
		t.Errorf("running gauge = %v, want 1", v)
	}
	SetRunning(false)
	if v := testutil.ToFloat64(ServiceRunningGauge); v != 0 {
		t.Errorf("running gauge = %v, want 0", v)
	}
	SetProcessing(true)
	if v := testutil.ToFloat64(ProcessingGauge); v != 1 {
		t.Errorf("processing gauge = %v, want 1", v)
	}
}

func TestInc_NilSafe(t *testing.T) {
	Inc(nil)
	setBool(nil, true)
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	Init()
	d := TimeFunc(CycleDuration, func() { time.Sleep(10 * time.Millisecond) })
	if d < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", d)
	}
	if d := TimeFunc(nil, func() {}); d < 0 {
		t.Errorf("TimeFunc(nil) = %v", d)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("expected empty correlation")
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
