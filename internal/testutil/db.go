package testutil

import (
	"context"
	"testing"

	"github.com/tOgg1/chatsync/internal/db"
)

// NewDB opens a migrated in-memory database closed at test cleanup.
func NewDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}
