package translation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/dialogue-tender/overlay"
	"github.com/onnwee/dialogue-tender/telemetry"
)

// pollLoop ticks every PollInterval. A tick that finds the previous cycle
// still running is dropped and counted, never queued.
func (s *Service) pollLoop(ctx context.Context, src FrameSource, sink overlay.Sink) {
	defer s.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.tick(ctx, src, sink)
		timer.Reset(s.Config().PollInterval)
	}
}

func (s *Service) tick(ctx context.Context, src FrameSource, sink overlay.Sink) {
	if !s.busy.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.stats.FramesSkipped++
		s.mu.Unlock()
		telemetry.Inc(telemetry.FramesSkipped)
		slog.Debug("frame skipped, previous cycle still processing", slog.String("component", "translation"))
		return
	}
	telemetry.SetProcessing(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.busy.Store(false)
			telemetry.SetProcessing(false)
		}()
		s.runCycle(ctx, src, sink)
	}()
}

// runCycle processes one frame. Errors and panics abandon the cycle; they
// never reach the loop.
func (s *Service) runCycle(ctx context.Context, src FrameSource, sink overlay.Sink) {
	ctx, span := telemetry.StartSpan(ctx, "translation", "translation.frame_cycle",
		telemetry.ModeAttr(string(s.Config().Mode)))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in frame cycle: %v", r)
			telemetry.RecordError(span, err)
			s.cycleFailed(err)
		}
	}()

	outcome, err := s.processFrame(ctx, src, sink)
	if err != nil {
		if ctx.Err() != nil {
			// Stopped mid-cycle.
			s.finishCycle(StageIdle)
			return
		}
		telemetry.RecordError(span, err)
		s.cycleFailed(err)
		return
	}
	span.SetAttributes(telemetry.StageAttr(string(outcome)))
	s.finishCycle(outcome)
}

func (s *Service) finishCycle(outcome Stage) {
	s.mu.Lock()
	s.stage = StageIdle
	if outcome != StageIdle {
		s.lastOutcome = outcome
	}
	s.mu.Unlock()
}

func (s *Service) cycleFailed(err error) {
	s.mu.Lock()
	s.stats.TranslationErrors++
	s.stage = StageIdle
	s.lastOutcome = StageFailed
	s.mu.Unlock()
	telemetry.Inc(telemetry.CycleErrors)
	slog.Error("frame cycle failed", slog.Any("err", err), slog.String("component", "translation"))
}

// detectionLoop re-locates the dialogue box whenever none is known or the
// last detection is older than DetectionInterval. It never touches the poll
// loop's state beyond the box.
func (s *Service) detectionLoop(ctx context.Context, src FrameSource) {
	defer s.wg.Done()
	if s.detector == nil {
		slog.Info("no dialogue box detector configured; box must be set manually", slog.String("component", "translation"))
		return
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		if s.shouldDetect() {
			s.detectOnce(ctx, src)
		}
		timer.Reset(s.Config().DetectionInterval)
	}
}

func (s *Service) shouldDetect() bool {
	cfg := s.Config()
	if !cfg.AutoDetect {
		return false
	}
	s.boxMu.RLock()
	defer s.boxMu.RUnlock()
	return s.box == nil || s.now().Sub(s.lastDetection) >= cfg.DetectionInterval
}

func (s *Service) detectOnce(ctx context.Context, src FrameSource) {
	ctx, span := telemetry.StartSpan(ctx, "translation", "translation.detect_dialogue_box")
	defer span.End()
	logger := slog.Default().With(slog.String("component", "translation"))

	start := s.now()
	frame, err := src.Capture(ctx)
	if err == nil {
		box, derr := s.detector.DetectDialogueBox(ctx, frame)
		if derr == nil {
			elapsed := durMS(s.now().Sub(start))
			s.boxMu.Lock()
			s.box = &box
			span.SetAttributes(telemetry.BoxAttr(box.String()))
			s.lastDetection = s.now()
			s.lastDetectionMS = elapsed
			s.boxMu.Unlock()
			telemetry.Inc(telemetry.DetectionSuccesses)
			telemetry.SetSpanSuccess(span)
			logger.Info("dialogue box updated", slog.String("box", box.String()), slog.Float64("ms", elapsed))
			return
		}
		err = derr
	}
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	s.stats.DetectionFailures++
	s.mu.Unlock()
	telemetry.Inc(telemetry.DetectionFailures)
	telemetry.RecordError(span, err)
	_, hasBox := s.DialogueBox()
	logger.Warn("dialogue box detection failed, keeping previous box", slog.Any("err", err), slog.Bool("has_box", hasBox))
}
