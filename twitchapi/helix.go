// Package twitchapi contains minimal helpers to interact with the Twitch
// Helix API using an app access token: stream status lookups and a watcher
// that reports when a channel goes live or offline.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

const helixMaxRetries = 2

// ErrUnauthorized is returned when Helix rejects the app token.
var ErrUnauthorized = errors.New("twitch helix: unauthorized")

// HelixClient provides the Helix calls needed for live detection.
type HelixClient struct {
	TokenSource oauth2.TokenSource
	ClientID    string
	HTTPClient  *http.Client
	BaseURL     string
	// Backoff is the wait before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// Stream is a live broadcast.
type Stream struct {
	ID        string    `json:"id"`
	UserLogin string    `json:"user_login"`
	GameName  string    `json:"game_name"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	StartedAt time.Time `json:"started_at"`
	Language  string    `json:"language"`
}

var defaultHTTPClient = &http.Client{
	Timeout:   10 * time.Second,
	Transport: otelhttp.NewTransport(http.DefaultTransport),
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return defaultHTTPClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (hc *HelixClient) backoff() time.Duration {
	if hc.Backoff > 0 {
		return hc.Backoff
	}
	return 500 * time.Millisecond
}

// GetStreams returns the live streams for login; empty when offline.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.get(ctx, "/streams", map[string]string{"user_login": login}, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// get issues a GET with retries on 429 and 5xx and decodes JSON into out.
func (hc *HelixClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	if hc.TokenSource == nil {
		return errors.New("twitch helix: no token source")
	}
	wait := hc.backoff()
	var lastErr error
	for attempt := 0; attempt <= helixMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
		retry, err := hc.do(ctx, path, query, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		slog.Debug("helix request retry", slog.String("path", path), slog.Int("attempt", attempt+1), slog.Any("err", err))
	}
	return lastErr
}

func (hc *HelixClient) do(ctx context.Context, path string, query map[string]string, out any) (retry bool, err error) {
	tok, err := hc.TokenSource.Token()
	if err != nil {
		return false, fmt.Errorf("twitch app token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+path, nil)
	if err != nil {
		return false, err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := hc.http().Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return true, fmt.Errorf("helix %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("helix %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode helix %s: %w", path, err)
	}
	return false, nil
}
