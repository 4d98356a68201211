package translation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/onnwee/dialogue-tender/imageutil"
	"github.com/onnwee/dialogue-tender/overlay"
	"github.com/onnwee/dialogue-tender/telemetry"
	"github.com/onnwee/dialogue-tender/vision"
)

// processFrame runs capture, crop, hash, decide, translate and overlay for a
// single frame and returns the terminal stage.
func (s *Service) processFrame(ctx context.Context, src FrameSource, sink overlay.Sink) (Stage, error) {
	cfg := s.Config()
	start := s.now()

	s.setStage(StageCapturing)
	frame, err := src.Capture(ctx)
	if err != nil {
		return StageFailed, fmt.Errorf("capture frame: %w", err)
	}
	s.mu.Lock()
	s.stats.TotalScreenshots++
	s.timing.AvgScreenshotMS = ema(s.timing.AvgScreenshotMS, durMS(s.now().Sub(start)))
	seq := s.debugSeq
	if cfg.DebugMode {
		s.debugSeq++
	}
	s.mu.Unlock()
	telemetry.Inc(telemetry.FramesCaptured)

	box, ok := s.DialogueBox()
	if !ok {
		s.setStage(StageAwaitingBox)
		return StageAwaitingBox, nil
	}

	s.setStage(StageCropping)
	img, err := imageutil.Decode(frame)
	if err != nil {
		return StageFailed, err
	}
	crop, err := imageutil.Crop(img, box)
	if err != nil {
		return StageFailed, err
	}
	if cfg.DebugMode {
		saveDebugPair(img, crop, cfg.DebugDir, seq)
	}

	s.setStage(StageHashing)
	hash, err := imageutil.ComputeHash(crop)
	if err != nil {
		return StageFailed, err
	}

	now := s.now()
	s.mu.Lock()
	prev := s.lastHash
	s.lastHash = &hash
	changed := prev == nil || imageutil.HammingDistance(*prev, hash) >= cfg.ChangeThreshold
	forced := s.forceNext
	s.forceNext = false
	recheck := s.lastTranslation != nil && now.Sub(s.lastChange) > cfg.RecheckAfter()
	if !changed && !forced && !recheck {
		s.stats.APICallsSaved++
		s.stage = StageSkipped
		s.mu.Unlock()
		telemetry.Inc(telemetry.APICallsSaved)
		return StageSkipped, nil
	}
	s.stage = StageTranslating
	s.mu.Unlock()
	if recheck && !changed {
		slog.Debug("forced recheck of displayed translation", slog.String("component", "translation"))
	}

	translateStart := s.now()
	result, err := s.translate(ctx, cfg.Mode, crop)
	if err != nil {
		return StageFailed, err
	}
	translateMS := durMS(s.now().Sub(translateStart))

	outcome, err := s.apply(ctx, sink, result, forced)

	total := s.now().Sub(start)
	s.mu.Lock()
	s.stats.AvgLatencyMS = ema(s.stats.AvgLatencyMS, durMS(total))
	s.timing.AvgTranslationMS = ema(s.timing.AvgTranslationMS, translateMS)
	s.mu.Unlock()
	if telemetry.CycleDuration != nil {
		telemetry.CycleDuration.Observe(total.Seconds())
	}
	return outcome, err
}

func (s *Service) translate(ctx context.Context, mode Mode, crop image.Image) (vision.Result, error) {
	if mode == ModeVision {
		png, err := imageutil.Encode(crop)
		if err != nil {
			return vision.Result{}, err
		}
		return s.translator.TranslateImage(ctx, png)
	}
	if s.ocr == nil {
		return vision.Result{}, errors.New("ocr mode without a text extractor")
	}
	text, err := s.ocr.ExtractText(ctx, crop)
	if err != nil {
		return vision.Result{}, fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return vision.Result{}, nil
	}
	return s.translator.TranslateText(ctx, text)
}

// apply moves the overlay to match result.
func (s *Service) apply(ctx context.Context, sink overlay.Sink, result vision.Result, forced bool) (Stage, error) {
	now := s.now()
	if result.Empty() {
		s.clearDisplayed(now)
		telemetry.Inc(telemetry.OverlayClears)
		if err := sink.Clear(ctx); err != nil {
			return StageFailed, fmt.Errorf("overlay clear: %w", err)
		}
		return StageOverlayCleared, nil
	}

	s.mu.Lock()
	same := s.lastTranslation != nil && result.EnglishText == s.lastText
	shownFor := now.Sub(s.lastChange)
	s.mu.Unlock()

	if same && !forced {
		if shownFor > StaleAfter {
			slog.Info("clearing stale translation", slog.Duration("shown_for", shownFor), slog.String("component", "translation"))
			s.clearDisplayed(now)
			telemetry.Inc(telemetry.OverlayClears)
			if err := sink.Clear(ctx); err != nil {
				return StageFailed, fmt.Errorf("overlay clear: %w", err)
			}
			return StageOverlayCleared, nil
		}
		return StageUnchanged, nil
	}

	if err := sink.Update(ctx, result.JapaneseText, result.EnglishText); err != nil {
		return StageFailed, fmt.Errorf("overlay update: %w", err)
	}
	s.mu.Lock()
	r := result
	s.lastTranslation = &r
	s.lastText = result.EnglishText
	s.lastChange = now
	s.stats.TotalTranslations++
	s.mu.Unlock()
	telemetry.Inc(telemetry.Translations)
	slog.Info("translation displayed", slog.String("english", result.EnglishText), slog.String("component", "translation"))
	return StageOverlayUpdated, nil
}

func (s *Service) clearDisplayed(now time.Time) {
	s.mu.Lock()
	s.lastTranslation = nil
	s.lastText = ""
	s.lastChange = now
	s.mu.Unlock()
}

func saveDebugPair(full, crop image.Image, dir string, seq int) {
	for _, item := range []struct {
		label string
		img   image.Image
	}{
		{fmt.Sprintf("full_%04d", seq), full},
		{fmt.Sprintf("crop_%04d", seq), crop},
	} {
		if _, err := imageutil.SaveDebug(item.img, dir, item.label); err != nil {
			slog.Warn("failed to save debug image", slog.String("label", item.label), slog.Any("err", err), slog.String("component", "translation"))
		}
	}
}
