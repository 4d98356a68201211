package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Versioned schema for translation_history. Files are named
// NNNNNN_description.{up,down}.sql and embedded so the binary runs from any
// working directory.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

func migrateLog() *slog.Logger {
	return slog.Default().With(slog.String("component", "db_migrate"))
}

// withMigrator opens a migrator over the embedded files and runs fn. The
// migrator is not closed: its driver would close db along with it.
func withMigrator(db *sql.DB, fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	return fn(m)
}

// step runs one direction of migration and reports where the schema ended up.
// ErrNoChange is success.
func step(db *sql.DB, direction string, run func(*migrate.Migrate) error) error {
	return withMigrator(db, func(m *migrate.Migrate) error {
		if err := run(m); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				migrateLog().Info("schema unchanged", slog.String("direction", direction))
				return nil
			}
			return fmt.Errorf("migrate %s: %w", direction, err)
		}
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			migrateLog().Info("schema at no version", slog.String("direction", direction))
			return nil
		case err != nil:
			migrateLog().Warn("could not read schema version", slog.Any("err", err))
			return nil
		case dirty:
			return fmt.Errorf("schema dirty at version %d after %s; fix manually", version, direction)
		}
		migrateLog().Info("schema migrated",
			slog.String("direction", direction),
			slog.Uint64("version", uint64(version)))
		return nil
	})
}

// RunMigrations applies every pending migration. Safe to call on each start.
func RunMigrations(db *sql.DB) error {
	return step(db, "up", (*migrate.Migrate).Up)
}

// MigrateDown reverts the newest migration. Reverting the first one drops
// translation_history and everything in it.
func MigrateDown(db *sql.DB) error {
	return step(db, "down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// GetMigrationVersion reports the applied version; 0 means none.
func GetMigrationVersion(db *sql.DB) (version uint, dirty bool, err error) {
	err = withMigrator(db, func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		return verr
	})
	return version, dirty, err
}
