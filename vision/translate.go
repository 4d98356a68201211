package vision

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/onnwee/dialogue-tender/telemetry"
)

// TranslateText translates OCR'd Japanese text. Exhausted retries and
// unusable responses yield an empty Result and a nil error; only fatal API
// errors are returned.
func (c *Client) TranslateText(ctx context.Context, japanese string) (Result, error) {
	japanese = strings.TrimSpace(japanese)
	if japanese == "" {
		return Result{}, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "vision", "vision.translate_text",
		telemetry.VisionAttrs(opTranslateText, c.model())...)
	defer span.End()

	res, err := c.translate(ctx, opTranslateText, textBlock(translateTextPrompt+japanese))
	if err != nil {
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	if res.JapaneseText == "" && !res.Empty() {
		res.JapaneseText = japanese
	}
	return res, nil
}

// TranslateImage sends a cropped dialogue region straight to the model. The
// prompt tells it to ignore HUD and menu text. Failure handling matches
// TranslateText.
func (c *Client) TranslateImage(ctx context.Context, crop []byte) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "vision", "vision.translate_image",
		telemetry.VisionAttrs(opTranslateImage, c.model())...)
	defer span.End()

	res, err := c.translate(ctx, opTranslateImage, pngBlock(crop), textBlock(translateImagePrompt))
	if err != nil {
		telemetry.RecordError(span, err)
		return Result{}, err
	}
	return res, nil
}

func (c *Client) translate(ctx context.Context, op string, blocks ...contentBlock) (Result, error) {
	text, err := c.withRetry(ctx, op, func(ctx context.Context) (string, error) {
		return c.send(ctx, op, c.translateTimeout(), translateMaxTokens, blocks...)
	})
	if err != nil {
		if errors.Is(err, ErrRetriesExhausted) || errors.Is(err, ErrMalformedResponse) {
			slog.Error("translation degraded to empty result", slog.String("op", op), slog.Any("err", err), slog.String("component", "vision"))
			return Result{}, nil
		}
		return Result{}, err
	}
	res, ok := parseResult(text)
	if !ok {
		slog.Warn("unusable translation response", slog.String("op", op), slog.String("response", text), slog.String("component", "vision"))
		return Result{}, nil
	}
	return res, nil
}

func parseResult(text string) (Result, bool) {
	var raw struct {
		JapaneseText *string `json:"japanese_text"`
		EnglishText  *string `json:"english_text"`
	}
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &raw); err != nil {
		return Result{}, false
	}
	if raw.JapaneseText == nil || raw.EnglishText == nil {
		return Result{}, false
	}
	return Result{
		JapaneseText: strings.TrimSpace(*raw.JapaneseText),
		EnglishText:  strings.TrimSpace(*raw.EnglishText),
	}, true
}
