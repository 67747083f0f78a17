package store

import (
	"database/sql"
	"testing"

	"github.com/dukerupert/stride/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestProfile(t *testing.T, db *sql.DB, name, district string) int64 {
	t.Helper()
	p, err := NewProfileStore(db).Create(name, district, "hash")
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p.ID
}
