// Package tesseract provides an ocr.Engine backed by Tesseract via gosseract.
// It requires cgo and the tesseract/leptonica libraries with the jpn
// traineddata installed.
package tesseract

import (
	"fmt"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/onnwee/dialogue-tender/ocr"
)

// Engine serializes access to a single gosseract client, which is not safe
// for concurrent use.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New returns an ocr.EngineFactory for the given tesseract language
// (e.g. "jpn" or "jpn+jpn_vert").
func New(language string) ocr.EngineFactory {
	return func() (ocr.Engine, error) {
		client := gosseract.NewClient()
		if err := client.SetLanguage(language); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set language %q: %w", language, err)
		}
		if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set page seg mode: %w", err)
		}
		return &Engine{client: client}, nil
	}
}

// Recognize runs OCR over PNG bytes.
func (e *Engine) Recognize(png []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}

// Close releases the underlying tesseract handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
