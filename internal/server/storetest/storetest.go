// Package storetest opens migrated databases for tests.
package storetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/migrations"
	_ "modernc.org/sqlite"
)

// OpenSQLite returns a migrated SQLite database in a per-test temp file.
// It is closed when the test ends.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()

	dsn := dbx.SQLiteDSN(filepath.Join(t.TempDir(), "auth.db"))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := migrations.Up(context.Background(), db, "sqlite"); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}
