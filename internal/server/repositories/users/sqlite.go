package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const sqliteUserColumns = `id, email, username, password_hash, name, active, created_at, updated_at`

// SQLiteRepository implements Repository for modernc.org/sqlite.
// Timestamps are stored as unix milliseconds.
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, username, password_hash, name, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	u := *user
	u.Email = strings.ToLower(u.Email)
	now := r.now().UTC().Truncate(time.Millisecond)

	res, err := r.db.ExecContext(ctx, query, u.Email, u.Username, u.PasswordHash, u.Name, u.Active, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now

	return &u, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE username = ?`, username)
}

func (r *SQLiteRepository) GetByEmailOrUsername(ctx context.Context, identifier string) (*models.User, error) {
	query := `SELECT ` + sqliteUserColumns + ` FROM users
		WHERE email = ? OR username = ?
		ORDER BY CASE WHEN email = ? THEN 0 ELSE 1 END
		LIMIT 1`
	email := strings.ToLower(identifier)
	return r.getOne(ctx, query, email, identifier, email)
}

func (r *SQLiteRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET email = ?, username = ?, password_hash = ?, name = ?, active = ?, updated_at = ?
		WHERE id = ?
	`
	email := strings.ToLower(user.Email)
	now := r.now().UTC().Truncate(time.Millisecond)

	res, err := r.db.ExecContext(ctx, query, email, user.Username, user.PasswordHash, user.Name, user.Active, now.UnixMilli(), user.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	user.Email = email
	user.UpdatedAt = now

	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, offset, limit int) ([]*models.User, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u := &models.User{}
		var created, updated int64
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Name, &u.Active, &created, &updated); err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		u.CreatedAt = time.UnixMilli(created).UTC()
		u.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return out, total, nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u := &models.User{}
	var created, updated int64
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Name, &u.Active, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(updated).UTC()
	return u, nil
}
