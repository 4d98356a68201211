package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/dialogue-tender/telemetry"
)

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry runs call until it succeeds, hits a fatal error, or runs out of
// attempts. Backoff doubles after every retry; a rate limit triples it first.
func (c *Client) withRetry(ctx context.Context, op string, call func(context.Context) (string, error)) (string, error) {
	sleep := c.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	attempts := c.maxRetries() + 1
	backoff := c.initialBackoff()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := call(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err
		class := Classify(err)
		if class == ErrorClassFatal || class == ErrorClassUnknown {
			return "", err
		}
		if attempt == attempts {
			break
		}
		if class == ErrorClassRateLimited {
			backoff *= rateLimitMultiplier
		}
		telemetry.IncVisionRetry(op, class.String())
		slog.Warn("vision call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("class", class.String()),
			slog.Duration("backoff", backoff),
			slog.Any("err", err),
			slog.String("component", "vision"))
		if err := sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
	}
	return "", fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, attempts, lastErr)
}
