package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/dialogue-tender/db"
	"github.com/onnwee/dialogue-tender/translation"
)

// defaultHistoryLimit is used when ?limit= is absent.
const defaultHistoryLimit = 50

type startRequest struct {
	PollInterval    *float64 `json:"poll_interval"`
	ChangeThreshold *int     `json:"change_threshold"`
	AutoDetect      *bool    `json:"auto_detect"`
}

type stopRequest struct {
	ClearOverlay *bool `json:"clear_overlay"`
}

// configureRequest carries durations as seconds, matching the status payload.
type configureRequest struct {
	PollInterval      *float64 `json:"poll_interval"`
	ChangeThreshold   *int     `json:"change_threshold"`
	DetectionInterval *float64 `json:"detection_interval"`
	DialogueBox       *string  `json:"dialogue_box"`
	DebugMode         *bool    `json:"debug_mode"`
	Mode              *string  `json:"mode"`
	AutoDetect        *bool    `json:"auto_detect"`
}

func (c configureRequest) patch() translation.Patch {
	p := translation.Patch{
		PollInterval:      seconds(c.PollInterval),
		ChangeThreshold:   c.ChangeThreshold,
		DetectionInterval: seconds(c.DetectionInterval),
		DialogueBox:       c.DialogueBox,
		DebugMode:         c.DebugMode,
		AutoDetect:        c.AutoDetect,
	}
	if c.Mode != nil {
		m := translation.Mode(*c.Mode)
		p.Mode = &m
	}
	return p
}

func seconds(v *float64) *time.Duration {
	if v == nil {
		return nil
	}
	d := time.Duration(*v * float64(time.Second))
	return &d
}

// HandleStart applies the optional start parameters and launches the loops.
// The loops are bound to the server's lifetime, not the request.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.service.Running() {
		p := translation.Patch{
			PollInterval:    seconds(req.PollInterval),
			ChangeThreshold: req.ChangeThreshold,
			AutoDetect:      req.AutoDetect,
		}
		if !p.Empty() {
			h.service.Configure(p)
		}
	}

	res, err := h.service.Start(h.ctx, h.source, h.sink)
	if err != nil {
		if errors.Is(err, translation.ErrNoSource) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.logger().Error("start translation", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to start translation")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleStop stops the loops. clear_overlay defaults to true and may be given
// in the body or the query string.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	clearOverlay := parseBoolQuery(r, "clear_overlay", true)
	if req.ClearOverlay != nil {
		clearOverlay = *req.ClearOverlay
	}
	writeJSON(w, http.StatusOK, h.service.Stop(r.Context(), clearOverlay))
}

func (h *Handlers) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.service.Configure(req.patch()))
}

func (h *Handlers) HandleForce(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ForceTranslate())
}

func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Reset(r.Context()))
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Status())
}

// HandleHistory lists the most recent overlay changes, newest first.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "translation history is disabled")
		return
	}
	limit := parseIntQuery(r, "limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > db.MaxHistoryLimit {
		limit = db.MaxHistoryLimit
	}
	entries, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger().Error("list translation history", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if entries == nil {
		entries = []db.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": h.history.Session(),
		"entries":    entries,
	})
}
