package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTestHelix(url string) *HelixClient {
	return &HelixClient{
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		ClientID:    "test-client-id",
		BaseURL:     url,
		Backoff:     time.Millisecond,
	}
}

func TestHelixClient_GetStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("user_login"); got != "livechannel" {
			t.Errorf("user_login=%q want livechannel", got)
		}
		if r.Header.Get("Client-Id") != "test-client-id" {
			t.Errorf("missing or wrong Client-Id header")
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{
				"title":      "Live Now",
				"game_name":  "Dragon Quest",
				"started_at": "2024-10-15T14:30:00Z",
			}},
		})
	}))
	defer server.Close()

	streams, err := newTestHelix(server.URL).GetStreams(context.Background(), "livechannel")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	if streams[0].Title != "Live Now" {
		t.Errorf("stream title=%q want Live Now", streams[0].Title)
	}
	if want := time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC); !streams[0].StartedAt.Equal(want) {
		t.Errorf("started_at = %v, want %v", streams[0].StartedAt, want)
	}
}

func TestHelixClient_GetStreamsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []any{}})
	}))
	defer server.Close()

	streams, err := newTestHelix(server.URL).GetStreams(context.Background(), "quiet")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("expected no streams, got %d", len(streams))
	}
}

func TestHelixClient_Retries(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantErr      error
		wantAttempts int32
		wantOK       bool
	}{
		{"5xx then ok", []int{http.StatusBadGateway, http.StatusOK}, nil, 2, true},
		{"429 then ok", []int{http.StatusTooManyRequests, http.StatusOK}, nil, 2, true},
		{"5xx exhausted", []int{http.StatusServiceUnavailable}, nil, helixMaxRetries + 1, false},
		{"401 not retried", []int{http.StatusUnauthorized}, ErrUnauthorized, 1, false},
		{"400 not retried", []int{http.StatusBadRequest}, nil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(attempts.Add(1)) - 1
				status := tt.statuses[len(tt.statuses)-1]
				if n < len(tt.statuses) {
					status = tt.statuses[n]
				}
				w.WriteHeader(status)
				if status == http.StatusOK {
					_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{{"title": "ok"}}})
				}
			}))
			defer server.Close()

			_, err := newTestHelix(server.URL).GetStreams(context.Background(), "chan")
			if tt.wantOK && err != nil {
				t.Fatalf("GetStreams() error = %v", err)
			}
			if !tt.wantOK && err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestHelixClient_EmptyLogin(t *testing.T) {
	if _, err := newTestHelix("http://unused").GetStreams(context.Background(), ""); err == nil {
		t.Error("expected error for empty login")
	}
}
