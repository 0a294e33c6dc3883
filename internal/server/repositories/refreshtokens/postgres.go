package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, issued_at, expires_at, revoked, revoked_at, device)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.UserID, t.IssuedAt, t.ExpiresAt, t.Revoked, t.RevokedAt, t.Device); err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, issued_at, expires_at, revoked, revoked_at, device
		FROM refresh_tokens
		WHERE id = $1
	`
	t := &models.RefreshToken{}
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.UserID, &t.IssuedAt, &t.ExpiresAt, &t.Revoked, &revokedAt, &t.Device)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return t, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`
	n, err := execAffected(ctx, r.db, query, id, at)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE id = $1 AND revoked = FALSE
	`
	n, err := execAffected(ctx, r.db, query, id, at)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeAllByUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND revoked = FALSE
	`
	return execAffected(ctx, r.db, query, userID, at)
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	return execAffected(ctx, r.db, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE id IN (
			SELECT id FROM refresh_tokens
			WHERE expires_at < $1 OR (revoked AND revoked_at < $1)
			LIMIT $2
		)
	`
	return execAffected(ctx, r.db, query, cutoff, limit)
}

func execAffected(ctx context.Context, db dbx.DBTX, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
