package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/logger"
)

// NewSQLiteDB returns a migrated SQLite database in a per-test temp dir.
func NewSQLiteDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "inventory.db"), logger.Nop())
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("creating test database schema: %v", err)
	}
	return db
}
