package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/dialogue-tender/translation"
)

// HandleHealthz responds to liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"service", func(context.Context) error {
			if h.service == nil {
				return fmt.Errorf("translation service not initialised")
			}
			if h.source == nil {
				return fmt.Errorf("no frame source configured")
			}
			return nil
		}},
		{"vision_credentials", func(context.Context) error {
			return h.cfg.ValidateVisionReady()
		}},
		{"database", func(ctx context.Context) error {
			if h.history == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return h.history.Ping(ctx)
		}},
	}

	for _, check := range checks {
		if err := check.fn(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	resp := map[string]any{"status": "ready"}
	if h.service != nil {
		cfg := h.service.Config()
		resp["translation_enabled"] = h.service.Running()
		resp["mode"] = cfg.Mode
		if cfg.Mode == translation.ModeOCR {
			resp["ocr_language"] = h.cfg.OCRLanguage
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
