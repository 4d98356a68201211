package overlay

import (
	"context"
	"sync"
	"time"
)

// State is what an overlay should currently display.
type State struct {
	Visible   bool      `json:"visible"`
	Japanese  string    `json:"japanese_text"`
	English   string    `json:"english_text"`
	UpdatedAt time.Time `json:"updated_at"`
	Seq       uint64    `json:"seq"`
}

// subscriberBuffer is small on purpose: only the newest state matters.
const subscriberBuffer = 1

// Hub is a Sink that keeps the current State and broadcasts every change to
// subscribers. A slow subscriber only ever misses intermediate states; it
// never blocks the pipeline.
type Hub struct {
	mu      sync.Mutex
	state   State
	subs    map[chan State]struct{}
	nowFunc func() time.Time
}

// NewHub returns an empty hub with nothing displayed.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan State]struct{}), nowFunc: time.Now}
}

// Current returns the displayed state.
func (h *Hub) Current() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Subscribe returns a channel that immediately receives the current state and
// then every later change. Call the returned func to unsubscribe.
func (h *Hub) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	ch <- h.state
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Update(_ context.Context, japanese, english string) error {
	h.publish(State{Visible: true, Japanese: japanese, English: english})
	return nil
}

func (h *Hub) Clear(_ context.Context) error {
	h.mu.Lock()
	visible := h.state.Visible
	h.mu.Unlock()
	if !visible {
		return nil
	}
	h.publish(State{})
	return nil
}

func (h *Hub) publish(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s.Seq = h.state.Seq + 1
	s.UpdatedAt = h.nowFunc().UTC()
	h.state = s
	for ch := range h.subs {
		// Replace a stale undelivered state with the new one.
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
