package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/dialogue-tender/overlay"
)

const (
	// maxFrameBytes bounds a pushed frame.
	maxFrameBytes = 16 << 20
	sseKeepAlive  = 15 * time.Second
)

// HandleOverlayState returns what the overlay currently shows.
func (h *Handlers) HandleOverlayState(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotFound, "overlay hub is disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.hub.Current())
}

// HandleOverlayEvents streams overlay states as Server-Sent Events. The
// current state is sent first, then every change until the client leaves.
func (h *Handlers) HandleOverlayEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotFound, "overlay hub is disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	states, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case st := <-states:
			if err := writeEvent(w, st); err != nil {
				h.logger().Debug("overlay stream closed", slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, st overlay.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "data: "); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n\n")
	return err
}

// HandlePushFrame replaces the frame served by the push capture source.
func (h *Handlers) HandlePushFrame(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		writeError(w, http.StatusNotFound, "frame push is disabled")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "frame too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read frame")
		return
	}
	if err := h.push.Set(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
