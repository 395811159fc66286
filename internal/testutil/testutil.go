package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Napageneral/dailwatch/internal/db"
)

// OpenTestDB opens a fresh sqlite file with the full schema applied.
// The database is closed when the test finishes.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dailwatch.db")
	d, err := db.OpenPath(db.DriverModernc, path)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.ApplySchema(d); err != nil {
		d.Close()
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}
