// Package migrations contains embedded goose SQL migrations, one directory
// per SQL dialect, and the runner that applies them.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

var gooseDialects = map[string]goose.Dialect{
	"postgres": goose.DialectPostgres,
	"sqlite":   goose.DialectSQLite3,
}

// Up applies every pending migration for dialect ("postgres" or "sqlite")
// and returns the number applied.
func Up(ctx context.Context, db *sql.DB, dialect string) (int, error) {
	p, err := newProvider(db, dialect)
	if err != nil {
		return 0, err
	}
	res, err := p.Up(ctx)
	if err != nil {
		return len(res), fmt.Errorf("migrate up: %w", err)
	}
	return len(res), nil
}

// Version returns the current schema version for dialect.
func Version(ctx context.Context, db *sql.DB, dialect string) (int64, error) {
	p, err := newProvider(db, dialect)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

func newProvider(db *sql.DB, dialect string) (*goose.Provider, error) {
	d, ok := gooseDialects[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	fsys, err := fs.Sub(Migrations, dialect)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(d, db, fsys)
}
