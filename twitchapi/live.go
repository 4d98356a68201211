package twitchapi

import (
	"context"
	"log/slog"
	"time"
)

// StreamLister is satisfied by *HelixClient.
type StreamLister interface {
	GetStreams(ctx context.Context, login string) ([]Stream, error)
}

// LiveEvent reports a transition. Stream is nil when the channel went
// offline.
type LiveEvent struct {
	Live   bool
	Stream *Stream
}

// WatchLive polls the channel every interval and calls onChange on each
// live/offline transition, including the first observation when the channel
// is already live. Lookup errors are logged and the previous state is kept.
// It returns when ctx is done.
func WatchLive(ctx context.Context, lister StreamLister, channel string, interval time.Duration, onChange func(LiveEvent)) {
	if interval <= 0 {
		interval = time.Minute
	}
	logger := slog.Default().With(slog.String("component", "live_watcher"), slog.String("channel", channel))
	logger.Info("live watcher started", slog.Duration("interval", interval))

	live := false
	check := func() {
		streams, err := lister.GetStreams(ctx, channel)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("stream status lookup failed", slog.Any("err", err))
			}
			return
		}
		now := len(streams) > 0
		if now == live {
			return
		}
		live = now
		ev := LiveEvent{Live: now}
		if now {
			s := streams[0]
			ev.Stream = &s
			logger.Info("channel went live", slog.String("title", s.Title), slog.Time("started_at", s.StartedAt))
		} else {
			logger.Info("channel went offline")
		}
		onChange(ev)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("live watcher stopped")
			return
		case <-ticker.C:
			check()
		}
	}
}
