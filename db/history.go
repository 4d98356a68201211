package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindUpdate = "update"
	KindClear  = "clear"
)

// MaxHistoryLimit caps Recent.
const MaxHistoryLimit = 500

// Entry is one overlay change.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Japanese  string    `json:"japanese_text"`
	English   string    `json:"english_text"`
	SessionID uuid.UUID `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists overlay changes to translation_history.
type HistoryStore struct {
	db      *sql.DB
	session uuid.UUID
	now     func() time.Time
}

// NewHistoryStore returns a store that tags every entry with a fresh
// session id, one per process.
func NewHistoryStore(dbc *sql.DB) *HistoryStore {
	return &HistoryStore{db: dbc, session: uuid.New(), now: time.Now}
}

// Session is the id stamped on entries from this process.
func (h *HistoryStore) Session() uuid.UUID { return h.session }

// Record inserts e, filling ID, SessionID and CreatedAt when unset.
func (h *HistoryStore) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.SessionID == uuid.Nil {
		e.SessionID = h.session
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = h.now().UTC()
	}
	if e.Kind != KindUpdate && e.Kind != KindClear {
		return Entry{}, fmt.Errorf("history: unknown kind %q", e.Kind)
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO translation_history (id, kind, japanese_text, english_text, session_id, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Kind, e.Japanese, e.English, e.SessionID, e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("insert history: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, kind, japanese_text, english_text, COALESCE(session_id, '00000000-0000-0000-0000-000000000000'::uuid), created_at
		 FROM translation_history ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Japanese, &e.English, &e.SessionID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (h *HistoryStore) Ping(ctx context.Context) error { return h.db.PingContext(ctx) }

// HistorySink records overlay changes. Errors are logged, not returned, so a
// database outage never blocks the overlay.
type HistorySink struct {
	Store *HistoryStore
}

func (s HistorySink) Update(ctx context.Context, japanese, english string) error {
	s.record(ctx, Entry{Kind: KindUpdate, Japanese: japanese, English: english})
	return nil
}

func (s HistorySink) Clear(ctx context.Context) error {
	s.record(ctx, Entry{Kind: KindClear})
	return nil
}

func (s HistorySink) record(ctx context.Context, e Entry) {
	if s.Store == nil {
		return
	}
	if _, err := s.Store.Record(ctx, e); err != nil {
		slog.Warn("failed to record translation history", slog.String("kind", e.Kind), slog.Any("err", err), slog.String("component", "history"))
	}
}
