// Package refreshtokens declares the server-side repository contract for
// refresh token rows and its PostgreSQL and SQLite implementations.
package refreshtokens

//go:generate mockgen -destination=../../mocks/refreshtokens.go -package=mocks -mock_names=Repository=MockRefreshTokenRepository . Repository

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository stores refresh token rows. The store is the source of truth for
// whether a refresh token may still be used.
type Repository interface {
	// Create inserts a new row; a duplicate id is common.ErrorConflict.
	Create(ctx context.Context, token *models.RefreshToken) error

	// GetByID returns the row or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.RefreshToken, error)

	// Revoke marks the row revoked. Revoking an already revoked row succeeds
	// and keeps the original revoked_at. A missing row is common.ErrorNotFound.
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeIfActive revokes the row only if it is not revoked yet and
	// reports whether this call did it. Concurrent callers racing on the same
	// row see exactly one true.
	RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error)

	// RevokeAllByUser revokes every active row of userID.
	RevokeAllByUser(ctx context.Context, userID int64, at time.Time) (int64, error)

	// DeleteByUser removes every row of userID.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)

	// DeleteExpiredBefore removes up to limit rows that expired before cutoff
	// or were revoked before cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
