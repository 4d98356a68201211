// Package vision talks to a vision-capable LLM over the Anthropic Messages
// API. It locates the dialogue box in a full frame and translates Japanese
// dialogue, either from OCR'd text or straight from a cropped image.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onnwee/dialogue-tender/telemetry"
)

const (
	DefaultBaseURL          = "https://api.anthropic.com"
	DefaultModel            = "claude-3-haiku-20240307"
	DefaultTranslateTimeout = 15 * time.Second
	DefaultDetectTimeout    = 25 * time.Second
	DefaultMaxRetries       = 2
	DefaultInitialBackoff   = 500 * time.Millisecond

	apiVersion          = "2023-06-01"
	connectTimeout      = 5 * time.Second
	rateLimitMultiplier = 3
	translateMaxTokens  = 1024
	detectMaxTokens     = 512
	maxErrorBody        = 4 << 10
)

const (
	opDetect         = "detect"
	opTranslateText  = "translate_text"
	opTranslateImage = "translate_image"
)

// Client calls the Messages API. Zero-valued fields fall back to the
// Default* constants.
type Client struct {
	APIKey           string
	BaseURL          string
	Model            string
	HTTPClient       *http.Client
	TranslateTimeout time.Duration
	DetectTimeout    time.Duration
	// MaxRetries is the number of attempts after the first; 0 means
	// DefaultMaxRetries and a negative value disables retries.
	MaxRetries     int
	InitialBackoff time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Result is a translation. Both fields are empty when no dialogue is visible.
type Result struct {
	JapaneseText string `json:"japanese_text"`
	EnglishText  string `json:"english_text"`
}

// Empty reports whether the result has nothing to display.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.EnglishText) == ""
}

// defaultHTTPClient propagates trace context to the API when tracing is on.
var defaultHTTPClient = &http.Client{Transport: otelhttp.NewTransport(&http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
	TLSHandshakeTimeout: connectTimeout,
	MaxIdleConnsPerHost: 4,
})}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (c *Client) model() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

func (c *Client) translateTimeout() time.Duration {
	if c.TranslateTimeout > 0 {
		return c.TranslateTimeout
	}
	return DefaultTranslateTimeout
}

func (c *Client) detectTimeout() time.Duration {
	if c.DetectTimeout > 0 {
		return c.DetectTimeout
	}
	return DefaultDetectTimeout
}

func (c *Client) maxRetries() int {
	switch {
	case c.MaxRetries < 0:
		return 0
	case c.MaxRetries == 0:
		return DefaultMaxRetries
	default:
		return c.MaxRetries
	}
}

func (c *Client) initialBackoff() time.Duration {
	if c.InitialBackoff > 0 {
		return c.InitialBackoff
	}
	return DefaultInitialBackoff
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func textBlock(s string) contentBlock { return contentBlock{Type: "text", Text: s} }

func pngBlock(png []byte) contentBlock {
	return contentBlock{Type: "image", Source: &imageSource{
		Type:      "base64",
		MediaType: "image/png",
		Data:      base64.StdEncoding.EncodeToString(png),
	}}
}

// send performs one Messages call bounded by timeout and returns the text of
// the first content block.
func (c *Client) send(ctx context.Context, op string, timeout time.Duration, maxTokens int, blocks ...contentBlock) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = Classify(err).String()
		}
		telemetry.ObserveVisionCall(op, outcome, time.Since(start))
	}()

	body, err := json.Marshal(messagesRequest{
		Model:     c.model(),
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(b, &er) == nil && er.Error.Type != "" {
			apiErr.Type = er.Error.Type
			apiErr.Message = er.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(b))
		}
		return "", apiErr
	}

	var mr messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		// A body cut off by the read deadline surfaces here.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: decode body: %v", ErrMalformedResponse, err)
	}
	for _, blk := range mr.Content {
		if blk.Type == "text" {
			return blk.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content", ErrMalformedResponse)
}

// StripCodeFence removes a surrounding markdown code fence (``` or ```json).
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
