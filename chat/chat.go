package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// MaxMessageLen is Twitch's per-message limit.
const MaxMessageLen = 500

// CommandPrefix starts a moderator command.
const CommandPrefix = "!translate"

// Sayer sends a chat line. *twitch.Client satisfies it.
type Sayer interface {
	Say(channel, text string)
}

// Mirror posts translations to a Twitch channel.
type Mirror struct {
	Channel string
	// Prefix is prepended to each line, e.g. "[EN] ".
	Prefix      string
	MinInterval time.Duration

	sayer Sayer
	now   func() time.Time

	mu       sync.Mutex
	last     time.Time
	lastText string
	dropped  int

	cmdMu    sync.RWMutex
	commands map[string]func()
}

// NewMirror returns a Mirror that sends through sayer.
func NewMirror(channel string, sayer Sayer, minInterval time.Duration) *Mirror {
	return &Mirror{
		Channel:     strings.TrimPrefix(strings.ToLower(channel), "#"),
		Prefix:      "[EN] ",
		MinInterval: minInterval,
		sayer:       sayer,
		now:         time.Now,
		commands:    map[string]func(){},
	}
}

// Update posts english unless it repeats the last line or arrives inside
// MinInterval of the previous post, in which case it is dropped.
func (m *Mirror) Update(_ context.Context, _, english string) error {
	english = strings.TrimSpace(english)
	if english == "" {
		return nil
	}
	m.mu.Lock()
	now := m.now()
	if english == m.lastText {
		m.mu.Unlock()
		return nil
	}
	if !m.last.IsZero() && now.Sub(m.last) < m.MinInterval {
		m.dropped++
		m.mu.Unlock()
		slog.Debug("chat mirror throttled", slog.String("channel", m.Channel), slog.String("component", "chat_mirror"))
		return nil
	}
	m.last = now
	m.lastText = english
	m.mu.Unlock()

	m.sayer.Say(m.Channel, truncate(m.Prefix+english, MaxMessageLen))
	return nil
}

// Clear is a no-op; chat history cannot be retracted.
func (m *Mirror) Clear(context.Context) error { return nil }

// Dropped returns how many lines were throttled.
func (m *Mirror) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Handle registers fn for "!translate <name>".
func (m *Mirror) Handle(name string, fn func()) {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()
	m.commands[strings.ToLower(name)] = fn
}

// dispatch runs the command in msg if the sender is privileged. It reports
// whether a handler ran.
func (m *Mirror) dispatch(msg twitch.PrivateMessage) bool {
	fields := strings.Fields(strings.ToLower(msg.Message))
	if len(fields) < 2 || fields[0] != CommandPrefix {
		return false
	}
	if !privileged(msg.User) {
		slog.Info("ignoring chat command from unprivileged user", slog.String("user", msg.User.Name), slog.String("component", "chat_mirror"))
		return false
	}
	m.cmdMu.RLock()
	fn, ok := m.commands[fields[1]]
	m.cmdMu.RUnlock()
	if !ok {
		return false
	}
	slog.Info("chat command", slog.String("command", fields[1]), slog.String("user", msg.User.Name), slog.String("component", "chat_mirror"))
	fn()
	return true
}

func privileged(u twitch.User) bool {
	return u.Badges["broadcaster"] > 0 || u.Badges["moderator"] > 0
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Connect joins channel as username and returns a Mirror bound to the
// connection. The client disconnects when ctx is done.
func Connect(ctx context.Context, channel, username, oauth string, minInterval time.Duration) *Mirror {
	client := twitch.NewClient(username, oauth)
	m := NewMirror(channel, client, minInterval)

	client.OnConnect(func() {
		slog.Info("twitch chat connected", slog.String("channel", m.Channel), slog.String("component", "chat_mirror"))
	})
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) { m.dispatch(msg) })

	go func() {
		<-ctx.Done()
		if err := client.Disconnect(); err != nil {
			slog.Debug("twitch chat disconnect", slog.Any("err", err))
		}
	}()

	client.Join(m.Channel)
	go func() {
		// Connect blocks and reconnects internally until Disconnect.
		if err := client.Connect(); err != nil && ctx.Err() == nil {
			slog.Error("twitch chat connect error", slog.Any("err", err), slog.String("component", "chat_mirror"))
		}
	}()
	return m
}
