// Package translation runs the dialogue translation pipeline. A Service owns
// two goroutines: a poll loop that captures frames, detects changes in the
// dialogue box by perceptual hash and drives OCR, translation and the
// overlay; and a detection loop that re-locates the dialogue box on its own
// schedule. The two share only the box, guarded by its own lock.
package translation

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/dialogue-tender/imageutil"
	"github.com/onnwee/dialogue-tender/overlay"
	"github.com/onnwee/dialogue-tender/telemetry"
	"github.com/onnwee/dialogue-tender/vision"
)

// FrameSource returns the current broadcast frame as PNG bytes.
type FrameSource interface {
	Capture(ctx context.Context) ([]byte, error)
}

// TextExtractor is the OCR step. It returns "" when there is no text.
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Image) (string, error)
}

// Translator turns Japanese text or a cropped image into a Result. An empty
// Result means no dialogue.
type Translator interface {
	TranslateText(ctx context.Context, japanese string) (vision.Result, error)
	TranslateImage(ctx context.Context, crop []byte) (vision.Result, error)
}

// BoxDetector locates the dialogue box in a full frame.
type BoxDetector interface {
	DetectDialogueBox(ctx context.Context, frame []byte) (imageutil.Box, error)
}

// ErrNoSource is returned by Start when no frame source is given.
var ErrNoSource = errors.New("frame source required")

// Deps are the adapters a Service drives.
type Deps struct {
	OCR        TextExtractor
	Translator Translator
	Detector   BoxDetector
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the translation orchestrator. Create one per process with New.
type Service struct {
	ocr        TextExtractor
	translator Translator
	detector   BoxDetector
	now        func() time.Time
	defaults   Config

	cfgMu sync.RWMutex
	cfg   Config

	// boxMu guards the only state shared between the two loops.
	boxMu           sync.RWMutex
	box             *imageutil.Box
	lastDetection   time.Time
	lastDetectionMS float64

	// lifeMu serializes Start, Stop and Reset.
	lifeMu  sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sink    overlay.Sink
	wake    chan struct{}

	busy atomic.Bool

	// mu guards poll-loop state and statistics, which Status reads
	// concurrently.
	mu              sync.Mutex
	lastHash        *imageutil.Hash
	lastTranslation *vision.Result
	lastText        string
	lastChange      time.Time
	forceNext       bool
	stage           Stage
	lastOutcome     Stage
	stats           Statistics
	timing          Timing
	debugSeq        int
}

// New returns a stopped Service using cfg as both the initial and the Reset
// configuration.
func New(cfg Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Translator == nil {
		return nil, errors.New("translation: translator required")
	}
	if cfg.Mode == ModeOCR && deps.OCR == nil {
		return nil, errors.New("translation: ocr mode requires a text extractor")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		ocr:         deps.OCR,
		translator:  deps.Translator,
		detector:    deps.Detector,
		now:         now,
		defaults:    cfg,
		cfg:         cfg,
		wake:        make(chan struct{}, 1),
		stage:       StageIdle,
		lastOutcome: StageIdle,
	}, nil
}

// Config returns the live configuration.
func (s *Service) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// Running reports whether the loops are active.
func (s *Service) Running() bool { return s.running.Load() }

// DialogueBox returns the current box, if one is known.
func (s *Service) DialogueBox() (imageutil.Box, bool) {
	s.boxMu.RLock()
	defer s.boxMu.RUnlock()
	if s.box == nil {
		return imageutil.Box{}, false
	}
	return *s.box, true
}

// LastHash returns the hash stored by the most recent cycle.
func (s *Service) LastHash() (imageutil.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastHash == nil {
		return 0, false
	}
	return *s.lastHash, true
}

// Start launches the poll and detection loops. ctx bounds their lifetime
// and should outlive the caller's request. Calling Start on a running
// service returns StatusAlreadyRunning and changes nothing.
func (s *Service) Start(ctx context.Context, src FrameSource, sink overlay.Sink) (StartResult, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.running.Load() {
		return StartResult{Status: StatusAlreadyRunning}, nil
	}
	if src == nil {
		return StartResult{}, ErrNoSource
	}
	if sink == nil {
		sink = overlay.Funcs{}
	}

	s.mu.Lock()
	s.lastHash = nil
	s.lastTranslation = nil
	s.lastText = ""
	s.lastChange = s.now()
	s.forceNext = false
	s.stage = StageIdle
	s.lastOutcome = StageIdle
	s.stats = Statistics{}
	s.timing = Timing{}
	s.mu.Unlock()
	s.busy.Store(false)

	loopCtx, cancel := context.WithCancel(ctx)
	s.sink = sink
	s.cancel = cancel
	s.wg.Add(2)
	go s.pollLoop(loopCtx, src, sink)
	go s.detectionLoop(loopCtx, src)
	s.running.Store(true)
	telemetry.SetRunning(true)

	cfg := s.Config()
	slog.Info("translation service started",
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Int("change_threshold", cfg.ChangeThreshold),
		slog.Duration("detection_interval", cfg.DetectionInterval),
		slog.String("mode", string(cfg.Mode)),
		slog.String("component", "translation"))
	return StartResult{
		Status:            StatusStarted,
		PollInterval:      cfg.PollInterval.Seconds(),
		ChangeThreshold:   cfg.ChangeThreshold,
		DetectionInterval: cfg.DetectionInterval.Seconds(),
	}, nil
}

// Stop cancels both loops and any in-flight cycle, waits for them to exit
// and optionally clears the overlay.
func (s *Service) Stop(ctx context.Context, clearOverlay bool) StopResult {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.stopLocked(ctx, clearOverlay)
}

func (s *Service) stopLocked(ctx context.Context, clearOverlay bool) StopResult {
	if !s.running.Load() {
		return StopResult{Status: StatusNotRunning}
	}
	s.cancel()
	s.wg.Wait()
	s.running.Store(false)
	s.busy.Store(false)
	telemetry.SetRunning(false)
	telemetry.SetProcessing(false)

	s.mu.Lock()
	s.stage = StageIdle
	s.mu.Unlock()

	stats := s.statistics()
	if clearOverlay {
		if err := s.sink.Clear(ctx); err != nil {
			slog.Warn("overlay clear on stop failed", slog.Any("err", err), slog.String("component", "translation"))
		}
	}
	slog.Info("translation service stopped",
		slog.Int64("screenshots", stats.TotalScreenshots),
		slog.Int64("translations", stats.TotalTranslations),
		slog.Float64("efficiency_percent", stats.EfficiencyPercent),
		slog.String("component", "translation"))
	return StopResult{Status: StatusStopped, FinalStats: &stats, ClearOverlay: clearOverlay}
}

// Reset stops the service if needed and restores the initial configuration,
// forgetting the dialogue box and all statistics.
func (s *Service) Reset(ctx context.Context) ResetResult {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	wasRunning := s.running.Load()
	if wasRunning {
		s.stopLocked(ctx, true)
	}
	s.cfgMu.Lock()
	s.cfg = s.defaults
	s.cfgMu.Unlock()

	s.boxMu.Lock()
	s.box = nil
	s.lastDetection = time.Time{}
	s.lastDetectionMS = 0
	s.boxMu.Unlock()

	s.mu.Lock()
	s.lastHash = nil
	s.lastTranslation = nil
	s.lastText = ""
	s.forceNext = false
	s.stats = Statistics{}
	s.timing = Timing{}
	s.debugSeq = 0
	s.stage = StageIdle
	s.lastOutcome = StageIdle
	s.mu.Unlock()

	slog.Info("translation service reset", slog.Bool("was_running", wasRunning), slog.String("component", "translation"))
	return ResetResult{Status: StatusReset, WasRunning: wasRunning}
}

// ForceTranslate makes the next cycle translate regardless of the hash and
// re-push the overlay even if the text is unchanged.
func (s *Service) ForceTranslate() ForceResult {
	if !s.running.Load() {
		return ForceResult{Status: StatusNotRunning}
	}
	s.mu.Lock()
	s.lastHash = nil
	s.forceNext = true
	s.mu.Unlock()
	slog.Info("forced translation requested", slog.String("component", "translation"))
	return ForceResult{Status: StatusForced}
}

// Configure applies p and reports which fields changed. Invalid values,
// including an unparsable dialogue box, are logged and ignored.
func (s *Service) Configure(p Patch) ConfigureResult {
	var updated []string
	logger := slog.Default().With(slog.String("component", "translation"))

	s.cfgMu.Lock()
	if p.PollInterval != nil {
		if *p.PollInterval > 0 {
			s.cfg.PollInterval = *p.PollInterval
			updated = append(updated, "poll_interval")
		} else {
			logger.Warn("ignoring non-positive poll interval", slog.Duration("value", *p.PollInterval))
		}
	}
	if p.ChangeThreshold != nil {
		if v := *p.ChangeThreshold; v >= 0 && v <= 64 {
			s.cfg.ChangeThreshold = v
			updated = append(updated, "change_threshold")
		} else {
			logger.Warn("ignoring out-of-range change threshold", slog.Int("value", v))
		}
	}
	if p.DetectionInterval != nil {
		if *p.DetectionInterval > 0 {
			s.cfg.DetectionInterval = *p.DetectionInterval
			updated = append(updated, "detection_interval")
		} else {
			logger.Warn("ignoring non-positive detection interval", slog.Duration("value", *p.DetectionInterval))
		}
	}
	if p.DebugMode != nil {
		s.cfg.DebugMode = *p.DebugMode
		updated = append(updated, "debug_mode")
	}
	if p.Mode != nil {
		switch {
		case !p.Mode.Valid():
			logger.Warn("ignoring unknown mode", slog.String("value", string(*p.Mode)))
		case *p.Mode == ModeOCR && s.ocr == nil:
			logger.Warn("ignoring ocr mode: no text extractor configured")
		default:
			s.cfg.Mode = *p.Mode
			updated = append(updated, "mode")
		}
	}
	if p.AutoDetect != nil {
		s.cfg.AutoDetect = *p.AutoDetect
		updated = append(updated, "auto_detect")
	}
	cfg := s.cfg
	s.cfgMu.Unlock()

	if p.DialogueBox != nil {
		box, err := imageutil.ParseBox(*p.DialogueBox)
		if err != nil {
			logger.Warn("ignoring invalid dialogue box", slog.String("value", *p.DialogueBox), slog.Any("err", err))
		} else {
			s.boxMu.Lock()
			s.box = &box
			s.lastDetection = s.now()
			s.boxMu.Unlock()
			updated = append(updated, "dialogue_box")
		}
	}

	if p.DetectionInterval != nil || p.AutoDetect != nil {
		s.nudgeDetection()
	}
	if len(updated) > 0 {
		logger.Info("translation service configured", slog.Any("updated", updated))
	}
	return ConfigureResult{Status: StatusConfigured, Updated: updated, Configuration: cfg}
}

// Status returns a consistent snapshot of configuration, state, statistics
// and timing.
func (s *Service) Status() Status {
	st := Status{
		Enabled:       s.running.Load(),
		Configuration: s.Config(),
	}

	s.boxMu.RLock()
	if s.box != nil {
		b := *s.box
		st.State.DialogueBox = &b
		t := s.lastDetection
		st.State.LastDetection = &t
	}
	lastDetectionMS := s.lastDetectionMS
	s.boxMu.RUnlock()

	s.mu.Lock()
	if s.lastTranslation != nil {
		r := *s.lastTranslation
		st.State.LastTranslation = &r
	}
	if s.lastHash != nil {
		st.State.LastHash = s.lastHash.String()
	}
	st.State.Stage = s.stage
	st.State.LastOutcome = s.lastOutcome
	st.Statistics = s.stats.withDerived()
	st.Timing = s.timing
	s.mu.Unlock()

	st.State.ProcessingFrame = s.busy.Load()
	st.Timing.LastDetectionMS = lastDetectionMS
	if st.Statistics.AvgLatencyMS > 0 {
		st.Timing.EffectiveFPS = 1000 / st.Statistics.AvgLatencyMS
	}
	return st
}

// Statistics returns the counters since the last fresh start.
func (s *Service) Statistics() Statistics { return s.statistics() }

func (s *Service) statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.withDerived()
}

func (s *Service) nudgeDetection() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) setStage(st Stage) {
	s.mu.Lock()
	s.stage = st
	s.mu.Unlock()
}
