// Package repomanager vends dialect-specific repositories bound to a
// transaction and runs the matching schema migrations.
package repomanager

//go:generate mockgen -destination=../../mocks/repomanager.go -package=mocks . RepositoryManager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	// Driver is the database/sql driver name the manager expects.
	Driver() string
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}

// migrateUp is a seam for testing migrations.Up.
var migrateUp = func(ctx context.Context, db *sql.DB, dialect string) (int, error) {
	return migrations.Up(ctx, db, dialect)
}

// New returns the manager for driver ("postgres" or "sqlite").
func New(driver string) (RepositoryManager, error) {
	switch driver {
	case "postgres":
		return NewPostgresRepositoryManager(), nil
	case "sqlite":
		return NewSQLiteRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
