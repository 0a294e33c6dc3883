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

// SQLiteRepository implements Repository for modernc.org/sqlite.
// Timestamps are stored as unix milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func (r *SQLiteRepository) Create(ctx context.Context, t *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, issued_at, expires_at, revoked, revoked_at, device)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var revokedAt sql.NullInt64
	if t.RevokedAt != nil {
		revokedAt = sql.NullInt64{Int64: toMillis(*t.RevokedAt), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, t.ID, t.UserID, toMillis(t.IssuedAt), toMillis(t.ExpiresAt), t.Revoked, revokedAt, t.Device)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, issued_at, expires_at, revoked, revoked_at, device
		FROM refresh_tokens
		WHERE id = ?
	`
	t := &models.RefreshToken{}
	var issuedAt, expiresAt int64
	var revokedAt sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.UserID, &issuedAt, &expiresAt, &t.Revoked, &revokedAt, &t.Device)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.IssuedAt = fromMillis(issuedAt)
	t.ExpiresAt = fromMillis(expiresAt)
	if revokedAt.Valid {
		at := fromMillis(revokedAt.Int64)
		t.RevokedAt = &at
	}
	return t, nil
}

func (r *SQLiteRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = COALESCE(revoked_at, ?)
		WHERE id = ?
	`
	n, err := execAffected(ctx, r.db, query, toMillis(at), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) RevokeIfActive(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?
		WHERE id = ? AND revoked = 0
	`
	n, err := execAffected(ctx, r.db, query, toMillis(at), id)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLiteRepository) RevokeAllByUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?
		WHERE user_id = ? AND revoked = 0
	`
	return execAffected(ctx, r.db, query, toMillis(at), userID)
}

func (r *SQLiteRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	return execAffected(ctx, r.db, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
}

func (r *SQLiteRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE id IN (
			SELECT id FROM refresh_tokens
			WHERE expires_at < ? OR (revoked = 1 AND revoked_at < ?)
			LIMIT ?
		)
	`
	c := toMillis(cutoff)
	return execAffected(ctx, r.db, query, c, c, limit)
}
