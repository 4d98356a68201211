package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/onnwee/dialogue-tender/imageutil"
	"github.com/onnwee/dialogue-tender/telemetry"
)

// DetectDialogueBox asks the model where the dialogue box is in a full PNG
// frame. Every failure, including exhausted retries and unusable responses,
// wraps ErrDetection.
func (c *Client) DetectDialogueBox(ctx context.Context, frame []byte) (imageutil.Box, error) {
	ctx, span := telemetry.StartSpan(ctx, "vision", "vision.detect_dialogue_box",
		telemetry.VisionAttrs(opDetect, c.model())...)
	defer span.End()

	text, err := c.withRetry(ctx, opDetect, func(ctx context.Context) (string, error) {
		return c.send(ctx, opDetect, c.detectTimeout(), detectMaxTokens, pngBlock(frame), textBlock(detectPrompt))
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDetection, err)
		telemetry.RecordError(span, err)
		return imageutil.Box{}, err
	}
	box, err := parseBox(text)
	if err != nil {
		telemetry.RecordError(span, err)
		slog.Warn("unusable detection response", slog.Any("err", err), slog.String("response", text), slog.String("component", "vision"))
		return imageutil.Box{}, err
	}
	telemetry.SetSpanSuccess(span)
	slog.Info("detected dialogue box", slog.String("box", box.String()), slog.String("component", "vision"))
	return box, nil
}

func parseBox(text string) (imageutil.Box, error) {
	var raw struct {
		X      *float64 `json:"x"`
		Y      *float64 `json:"y"`
		Width  *float64 `json:"width"`
		Height *float64 `json:"height"`
	}
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &raw); err != nil {
		return imageutil.Box{}, fmt.Errorf("%w: parse response: %v", ErrDetection, err)
	}
	if raw.X == nil || raw.Y == nil || raw.Width == nil || raw.Height == nil {
		return imageutil.Box{}, fmt.Errorf("%w: response missing x, y, width or height", ErrDetection)
	}
	box := imageutil.Box{
		X:      int(math.Round(*raw.X)),
		Y:      int(math.Round(*raw.Y)),
		Width:  int(math.Round(*raw.Width)),
		Height: int(math.Round(*raw.Height)),
	}
	if !box.Valid() {
		return imageutil.Box{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrDetection, box.Width, box.Height)
	}
	return box, nil
}
