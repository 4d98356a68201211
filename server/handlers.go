package server

import (
	"context"
	"log/slog"

	"github.com/onnwee/dialogue-tender/capture"
	"github.com/onnwee/dialogue-tender/config"
	"github.com/onnwee/dialogue-tender/db"
	"github.com/onnwee/dialogue-tender/overlay"
	"github.com/onnwee/dialogue-tender/translation"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx     context.Context
	service *translation.Service
	source  translation.FrameSource
	sink    overlay.Sink
	hub     *overlay.Hub
	history *db.HistoryStore
	push    *capture.Static
	cfg     *config.Config
}

// NewHandlers creates a new Handlers instance. ctx is the lifetime handed to
// the translation loops when they are started over HTTP.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	sink := deps.Sink
	if sink == nil && deps.Hub != nil {
		sink = deps.Hub
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Handlers{
		ctx:     ctx,
		service: deps.Service,
		source:  deps.Source,
		sink:    sink,
		hub:     deps.Hub,
		history: deps.History,
		push:    deps.Push,
		cfg:     cfg,
	}
}

func (h *Handlers) logger() *slog.Logger {
	return slog.Default().With(slog.String("component", "http"))
}
