package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// VisionReply scripts one response from MockVisionServer.
type VisionReply struct {
	// Status defaults to 200.
	Status int
	// Text is returned as the first content block on success.
	Text string
	// ErrorType is used for the error body on non-2xx statuses.
	ErrorType string
	// Delay is applied before responding; the handler returns early when
	// the client gives up.
	Delay time.Duration
}

// MockVisionServer mocks the Messages API. Replies are consumed in order and
// the last one repeats once the script runs out.
type MockVisionServer struct {
	*httptest.Server

	mu       sync.Mutex
	replies  []VisionReply
	requests []map[string]any
}

// NewMockVisionServer starts a mock server that is closed on test cleanup.
func NewMockVisionServer(t *testing.T, replies ...VisionReply) *MockVisionServer {
	t.Helper()
	m := &MockVisionServer{replies: replies}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

// Script replaces the remaining replies.
func (m *MockVisionServer) Script(replies ...VisionReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = replies
}

// Calls returns how many requests reached the server.
func (m *MockVisionServer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Request returns the decoded JSON body of the i-th request.
func (m *MockVisionServer) Request(i int) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.requests) {
		return nil
	}
	return m.requests[i]
}

func (m *MockVisionServer) next() VisionReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return VisionReply{Status: http.StatusInternalServerError, ErrorType: "api_error"}
	}
	r := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return r
}

func (m *MockVisionServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/messages" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // recorded best-effort
	m.mu.Lock()
	m.requests = append(m.requests, body)
	m.mu.Unlock()

	reply := m.next()
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"type":  "error",
			"error": map[string]string{"type": reply.ErrorType, "message": "mock failure"},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
		"id":   "msg_mock",
		"type": "message",
		"role": "assistant",
		"content": []map[string]string{
			{"type": "text", "text": reply.Text},
		},
		"stop_reason": "end_turn",
	})
}
