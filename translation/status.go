package translation

import (
	"time"

	"github.com/onnwee/dialogue-tender/imageutil"
	"github.com/onnwee/dialogue-tender/vision"
)

// Stage is where the frame cycle currently is.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageCapturing      Stage = "capturing"
	StageAwaitingBox    Stage = "awaiting_box"
	StageCropping       Stage = "cropping"
	StageHashing        Stage = "hashing"
	StageSkipped        Stage = "skipped"
	StageTranslating    Stage = "translating"
	StageOverlayUpdated Stage = "overlay_updated"
	StageOverlayCleared Stage = "overlay_cleared"
	StageUnchanged      Stage = "unchanged"
	StageFailed         Stage = "failed"
)

// Result status strings.
const (
	StatusStarted        = "started"
	StatusAlreadyRunning = "already_running"
	StatusStopped        = "stopped"
	StatusNotRunning     = "not_running"
	StatusConfigured     = "configured"
	StatusForced         = "forced_translation"
	StatusReset          = "reset"
)

// Statistics are counters since the last fresh start.
type Statistics struct {
	TotalScreenshots  int64   `json:"total_screenshots"`
	TotalTranslations int64   `json:"total_translations"`
	APICallsSaved     int64   `json:"api_calls_saved"`
	FramesSkipped     int64   `json:"frames_skipped"`
	DetectionFailures int64   `json:"detection_failures"`
	TranslationErrors int64   `json:"translation_errors"`
	EfficiencyPercent float64 `json:"efficiency_percent"`
	AvgLatencyMS      float64 `json:"avg_latency_ms"`
}

// Timing holds smoothed per-stage latencies.
type Timing struct {
	AvgScreenshotMS  float64 `json:"avg_screenshot_ms"`
	AvgTranslationMS float64 `json:"avg_translation_ms"`
	LastDetectionMS  float64 `json:"last_detection_ms"`
	EffectiveFPS     float64 `json:"effective_fps"`
}

// State is the orchestrator's view of the screen.
type State struct {
	DialogueBox     *imageutil.Box `json:"dialogue_box"`
	LastDetection   *time.Time     `json:"last_detection,omitempty"`
	LastTranslation *vision.Result `json:"last_translation"`
	LastHash        string         `json:"last_hash,omitempty"`
	ProcessingFrame bool           `json:"processing_frame"`
	Stage           Stage          `json:"processing_stage"`
	LastOutcome     Stage          `json:"last_outcome"`
}

// Status is the full snapshot returned by Service.Status.
type Status struct {
	Enabled       bool       `json:"enabled"`
	Configuration Config     `json:"configuration"`
	State         State      `json:"state"`
	Statistics    Statistics `json:"statistics"`
	Timing        Timing     `json:"timing"`
}

// StartResult is returned by Service.Start.
type StartResult struct {
	Status            string  `json:"status"`
	PollInterval      float64 `json:"poll_interval,omitempty"`
	ChangeThreshold   int     `json:"change_threshold,omitempty"`
	DetectionInterval float64 `json:"detection_interval,omitempty"`
}

// StopResult is returned by Service.Stop.
type StopResult struct {
	Status       string      `json:"status"`
	FinalStats   *Statistics `json:"final_stats,omitempty"`
	ClearOverlay bool        `json:"clear_overlay"`
}

// ConfigureResult lists the fields a Patch actually changed.
type ConfigureResult struct {
	Status        string   `json:"status"`
	Updated       []string `json:"updated"`
	Configuration Config   `json:"configuration"`
}

// ForceResult is returned by Service.ForceTranslate.
type ForceResult struct {
	Status string `json:"status"`
}

// ResetResult is returned by Service.Reset.
type ResetResult struct {
	Status     string `json:"status"`
	WasRunning bool   `json:"was_running"`
}

// ema folds sample into avg; the first sample seeds the average.
func ema(avg, sample float64) float64 {
	if avg == 0 {
		return sample
	}
	return EMAWeight*sample + (1-EMAWeight)*avg
}

func durMS(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func (s Statistics) withDerived() Statistics {
	if s.TotalScreenshots > 0 {
		s.EfficiencyPercent = float64(s.APICallsSaved) / float64(s.TotalScreenshots) * 100
	}
	return s
}
