// Package ocr wraps a local Japanese text recognizer and filters out the
// plausible-looking garbage recognizers tend to emit when run over noise.
package ocr

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/dialogue-tender/imageutil"
	"github.com/onnwee/dialogue-tender/telemetry"
)

// Engine is the underlying recognizer. Implementations receive PNG bytes.
type Engine interface {
	Recognize(png []byte) (string, error)
}

// EngineFactory builds the Engine on first use.
type EngineFactory func() (Engine, error)

// ExtractionError reports a hard recognizer failure (corrupt input, engine
// init failure). Rejected output is never an ExtractionError.
type ExtractionError struct {
	Op  string
	Err error
}

func (e *ExtractionError) Error() string { return "ocr " + e.Op + ": " + e.Err.Error() }

func (e *ExtractionError) Unwrap() error { return e.Err }

// Client lazily initializes its Engine and validates everything it returns.
type Client struct {
	newEngine  EngineFactory
	thresholds Thresholds

	once    sync.Once
	engine  Engine
	initErr error
}

// NewClient returns a Client that calls factory on the first ExtractText.
func NewClient(factory EngineFactory) *Client {
	return &Client{newEngine: factory, thresholds: DefaultThresholds}
}

// WithThresholds overrides the hallucination filter thresholds.
func (c *Client) WithThresholds(t Thresholds) *Client {
	c.thresholds = t
	return c
}

func (c *Client) load() (Engine, error) {
	c.once.Do(func() {
		start := time.Now()
		c.engine, c.initErr = c.newEngine()
		if c.initErr != nil {
			slog.Error("ocr engine init failed", slog.Any("err", c.initErr), slog.String("component", "ocr"))
			return
		}
		slog.Info("ocr engine ready", slog.Duration("init", time.Since(start)), slog.String("component", "ocr"))
	})
	return c.engine, c.initErr
}

// ExtractText recognizes the text in img. Text that fails the plausibility
// check comes back as "" with a nil error.
func (c *Client) ExtractText(ctx context.Context, img image.Image) (string, error) {
	_, span := telemetry.StartSpan(ctx, "ocr", "ocr.extract_text")
	defer span.End()

	engine, err := c.load()
	if err != nil {
		err = &ExtractionError{Op: "init", Err: err}
		telemetry.RecordError(span, err)
		return "", err
	}
	png, err := imageutil.Encode(img)
	if err != nil {
		err = &ExtractionError{Op: "encode", Err: err}
		telemetry.RecordError(span, err)
		return "", err
	}
	raw, err := engine.Recognize(png)
	if err != nil {
		err = &ExtractionError{Op: "recognize", Err: err}
		telemetry.RecordError(span, err)
		slog.Warn("ocr extraction failed", slog.Any("err", err), slog.String("component", "ocr"))
		return "", err
	}
	text := Clean(raw)
	if !c.thresholds.Plausible(text) {
		if text != "" {
			slog.Debug("ocr output rejected", slog.String("text", text), slog.String("component", "ocr"))
		}
		return "", nil
	}
	return text, nil
}

// Clean drops all whitespace, which the recognizer inserts between glyphs of
// vertical or spaced-out Japanese text.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), "")
}
