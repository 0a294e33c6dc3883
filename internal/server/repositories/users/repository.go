// Package users declares the server-side repository contract for user
// accounts and its PostgreSQL and SQLite implementations.
package users

//go:generate mockgen -destination=../../mocks/users.go -package=mocks -mock_names=Repository=MockUserRepository . Repository

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository persists user accounts. Emails are stored lower-cased.
//
// Missing rows surface as common.ErrorNotFound; duplicate email or username
// as common.ErrorConflict.
type Repository interface {
	// Create inserts user and returns it with ID and timestamps filled in.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmailOrUsername resolves a login identifier. An email match wins
	// over a username match.
	GetByEmailOrUsername(ctx context.Context, identifier string) (*models.User, error)

	// Update writes email, username, name, password hash and active flag of
	// user.ID and bumps UpdatedAt.
	Update(ctx context.Context, user *models.User) error

	Delete(ctx context.Context, id int64) error

	// List returns up to limit users ordered by id, skipping offset, and the
	// total number of users.
	List(ctx context.Context, offset, limit int) ([]*models.User, int64, error)
}
