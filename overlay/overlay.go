// Package overlay defines where translations go once the pipeline produces
// them. A Sink shows or hides the current dialogue line; the Hub streams that
// state to OBS browser sources over server-sent events.
package overlay

import (
	"context"
	"errors"
	"log/slog"
)

// Sink displays translations. Update replaces whatever is shown; Clear is a
// no-op when nothing is shown.
type Sink interface {
	Update(ctx context.Context, japanese, english string) error
	Clear(ctx context.Context) error
}

// Funcs adapts a pair of functions to a Sink. Nil functions are no-ops.
type Funcs struct {
	UpdateFunc func(ctx context.Context, japanese, english string) error
	ClearFunc  func(ctx context.Context) error
}

func (f Funcs) Update(ctx context.Context, japanese, english string) error {
	if f.UpdateFunc == nil {
		return nil
	}
	return f.UpdateFunc(ctx, japanese, english)
}

func (f Funcs) Clear(ctx context.Context) error {
	if f.ClearFunc == nil {
		return nil
	}
	return f.ClearFunc(ctx)
}

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Update(ctx context.Context, japanese, english string) error {
	var errs []error
	for _, s := range m {
		if err := s.Update(ctx, japanese, english); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Clear(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes translations to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l LogSink) Update(_ context.Context, japanese, english string) error {
	l.logger().Info("overlay update", slog.String("japanese", japanese), slog.String("english", english), slog.String("component", "overlay"))
	return nil
}

func (l LogSink) Clear(_ context.Context) error {
	l.logger().Info("overlay clear", slog.String("component", "overlay"))
	return nil
}
