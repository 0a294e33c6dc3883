package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

var (
	ErrEmailTaken    = common.NewError(common.KindConflict, "email already registered", common.ErrorConflict)
	ErrUsernameTaken = common.NewError(common.KindConflict, "username already taken", common.ErrorConflict)
)

// NewUser is the input of Register.
type NewUser struct {
	Email    string
	Username string
	Name     string
	Password string
}

// UserUpdate lists the fields to change. Nil fields are left untouched.
type UserUpdate struct {
	Email    *string
	Username *string
	Name     *string
	Password *string
	Active   *bool
}

// Page bounds for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// UserPage is one page of List.
type UserPage struct {
	Users []*models.User
	Total int64
	Page  int
	Size  int
	Pages int
}

// UserService manages user accounts.
type UserService struct {
	repomanager repomanager.RepositoryManager
	hasher      cryptox.PasswordHasher
	now         func() time.Time
}

func NewUserService(m repomanager.RepositoryManager, hasher cryptox.PasswordHasher) *UserService {
	return &UserService{repomanager: m, hasher: hasher, now: time.Now}
}

// Register creates an active user. Taken email or username yields a
// conflict, including when a concurrent insert wins the unique index.
func (s *UserService) Register(ctx context.Context, tx dbx.DBTX, in NewUser) (*models.User, error) {
	const op = "services.UserService.Register"

	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)

	if in.Email == "" || in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%s: %w", op, common.ErrorInvalidArgument)
	}

	if err := s.checkAvailable(ctx, tx, 0, &in.Email, &in.Username); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.repomanager.Users(tx).Create(ctx, &models.User{
		Email:        in.Email,
		Username:     in.Username,
		Name:         in.Name,
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, tx dbx.DBTX, id int64) (*models.User, error) {
	const op = "services.UserService.Get"

	user, err := s.repomanager.Users(tx).GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// List returns page (1-based) of users ordered by id. Size must be within
// 1..MaxPageSize.
func (s *UserService) List(ctx context.Context, tx dbx.DBTX, page, size int) (*UserPage, error) {
	const op = "services.UserService.List"

	if page < 1 || size < 1 || size > MaxPageSize {
		return nil, fmt.Errorf("%s: %w", op, common.ErrorInvalidArgument)
	}

	users, total, err := s.repomanager.Users(tx).List(ctx, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &UserPage{
		Users: users,
		Total: total,
		Page:  page,
		Size:  size,
		Pages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

// Update applies upd to user id. Deactivating a user revokes all of its
// refresh tokens in the same transaction.
func (s *UserService) Update(ctx context.Context, tx dbx.DBTX, id int64, upd UserUpdate) (*models.User, error) {
	const op = "services.UserService.Update"

	repo := s.repomanager.Users(tx)

	user, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var email, username *string
	if upd.Email != nil && !strings.EqualFold(*upd.Email, user.Email) {
		email = upd.Email
	}
	if upd.Username != nil && *upd.Username != user.Username {
		username = upd.Username
	}
	if err := s.checkAvailable(ctx, tx, id, email, username); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if email != nil {
		user.Email = *email
	}
	if username != nil {
		user.Username = *username
	}
	if upd.Name != nil {
		user.Name = *upd.Name
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return nil, fmt.Errorf("%s: %w", op, common.ErrorInvalidArgument)
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		user.PasswordHash = hash
	}

	deactivated := false
	if upd.Active != nil {
		deactivated = user.Active && !*upd.Active
		user.Active = *upd.Active
	}

	if err := repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if deactivated {
		if _, err := s.repomanager.RefreshTokens(tx).RevokeAllByUser(ctx, id, s.now()); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return user, nil
}

// Delete removes the user's refresh tokens, then the user.
func (s *UserService) Delete(ctx context.Context, tx dbx.DBTX, id int64) error {
	const op = "services.UserService.Delete"

	if _, err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repomanager.Users(tx).Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// checkAvailable fails when email or username belongs to a user other than self.
func (s *UserService) checkAvailable(ctx context.Context, tx dbx.DBTX, self int64, email, username *string) error {
	repo := s.repomanager.Users(tx)

	if email != nil {
		if *email == "" {
			return common.ErrorInvalidArgument
		}
		u, err := repo.GetByEmail(ctx, *email)
		switch {
		case err == nil && u.ID != self:
			return ErrEmailTaken
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return err
		}
	}

	if username != nil {
		if *username == "" {
			return common.ErrorInvalidArgument
		}
		u, err := repo.GetByUsername(ctx, *username)
		switch {
		case err == nil && u.ID != self:
			return ErrUsernameTaken
		case err != nil && !errors.Is(err, common.ErrorNotFound):
			return err
		}
	}

	return nil
}
