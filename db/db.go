// Package db provides the Postgres connection, schema migration and the
// translation history store.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// ErrNoDSN is returned by Connect when history is disabled.
var ErrNoDSN = errors.New("db: empty DSN")

// Connect opens a Postgres connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	dbc, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	dbc.SetMaxOpenConns(4)
	dbc.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbc.PingContext(pingCtx); err != nil {
		_ = dbc.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return dbc, nil
}

// Migrate applies idempotent schema statements directly. RunMigrations is
// preferred; this is used where the golang-migrate version table is unwanted
// (tests sharing a database).
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS translation_history (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL CHECK (kind IN ('update', 'clear')),
			japanese_text TEXT NOT NULL DEFAULT '',
			english_text TEXT NOT NULL DEFAULT '',
			session_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_translation_history_created_at ON translation_history (created_at DESC)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
