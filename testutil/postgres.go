package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/onnwee/dialogue-tender/db"
)

// SetupHistoryStore connects to TEST_PG_DSN, ensures the history schema and
// returns a store with a fresh session. Tests are skipped when TEST_PG_DSN
// is unset. Rows the session writes are deleted on cleanup.
func SetupHistoryStore(t *testing.T) *db.HistoryStore {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect history db: %v", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		t.Fatalf("history schema: %v", err)
	}
	store := db.NewHistoryStore(database)
	t.Cleanup(func() {
		if _, err := database.Exec(`DELETE FROM translation_history WHERE session_id = $1`, store.Session()); err != nil {
			t.Logf("cleanup history rows: %v", err)
		}
		database.Close()
	})
	return store
}
