package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// AuthService implements the refresh token state machine:
//
//	issued -> active -> rotated | revoked | expired -> purged
//
// Rotation revokes the presented row with a compare-and-swap and inserts a
// new one in the same transaction, so of two concurrent refreshes with the
// same token exactly one succeeds.
type AuthService struct {
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	hasher      cryptox.PasswordHasher

	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration

	// dummyHash is verified when the login identifier is unknown so that both
	// branches cost one hash verification.
	dummyHash string
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(m repomanager.RepositoryManager, codec *auth.Codec, hasher cryptox.PasswordHasher, cfg *config.Config) (*AuthService, error) {
	dummy, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummy)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	return &AuthService{
		repomanager:                  m,
		codec:                        codec,
		hasher:                       hasher,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		dummyHash:                    dummyHash,
	}, nil
}

// Login verifies credentials and issues a new token pair. Unknown account,
// wrong password and inactive account all fail with
// common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, tx dbx.DBTX, req LoginRequest) (*TokenPair, error) {
	const op = "services.AuthService.Login"

	if req.Identifier == "" || req.Password == "" {
		return nil, fmt.Errorf("%s: %w", op, common.ErrInvalidCredentials)
	}

	user, err := s.repomanager.Users(tx).GetByEmailOrUsername(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(req.Password, s.dummyHash)
			return nil, fmt.Errorf("%s: %w", op, common.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) || !user.Active {
		return nil, fmt.Errorf("%s: %w", op, common.ErrInvalidCredentials)
	}

	pair, err := s.issuePair(ctx, tx, user.ID, req.Device)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// Refresh rotates a refresh token: the presented row is revoked and a new
// row and token pair are issued. A token that was already revoked yields a
// *ReuseError.
func (s *AuthService) Refresh(ctx context.Context, tx dbx.DBTX, refreshToken string) (*TokenPair, error) {
	const op = "services.AuthService.Refresh"

	row, err := s.lookupRefresh(ctx, tx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.codec.Now()

	if row.Revoked {
		return nil, fmt.Errorf("%s: %w", op, &ReuseError{UserID: row.UserID, TokenID: row.ID})
	}
	if !now.Before(row.ExpiresAt) {
		return nil, fmt.Errorf("%s: %w", op, common.ErrTokenExpired)
	}

	tokens := s.repomanager.RefreshTokens(tx)

	won, err := tokens.RevokeIfActive(ctx, row.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !won {
		// a concurrent rotation got there first
		return nil, fmt.Errorf("%s: %w", op, common.ErrTokenRevoked)
	}

	user, err := s.repomanager.Users(tx).GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%s: %w", op, common.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.Active {
		return nil, fmt.Errorf("%s: %w", op, common.ErrInvalidCredentials)
	}

	pair, err := s.issuePair(ctx, tx, user.ID, row.Device)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// Logout revokes the row behind refreshToken. Logging out twice with the
// same token succeeds.
func (s *AuthService) Logout(ctx context.Context, tx dbx.DBTX, refreshToken string) error {
	const op = "services.AuthService.Logout"

	row, err := s.lookupRefresh(ctx, tx, refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repomanager.RefreshTokens(tx).Revoke(ctx, row.ID, s.codec.Now()); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%s: %w", op, common.ErrInvalidToken)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RevokeAll revokes every active refresh token of userID and returns how
// many rows changed.
func (s *AuthService) RevokeAll(ctx context.Context, tx dbx.DBTX, userID int64) (int64, error) {
	const op = "services.AuthService.RevokeAll"

	n, err := s.repomanager.RefreshTokens(tx).RevokeAllByUser(ctx, userID, s.codec.Now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// Authenticate resolves an access token to its active user.
func (s *AuthService) Authenticate(ctx context.Context, tx dbx.DBTX, accessToken string) (*models.User, error) {
	const op = "services.AuthService.Authenticate"

	claims, err := s.codec.Verify(accessToken, auth.TokenTypeAccess)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.repomanager.Users(tx).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%s: %w", op, common.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !user.Active {
		return nil, fmt.Errorf("%s: %w", op, common.ErrInvalidCredentials)
	}
	return user, nil
}

// lookupRefresh verifies the artifact and loads its row. The row must
// exist and belong to the token subject.
func (s *AuthService) lookupRefresh(ctx context.Context, tx dbx.DBTX, refreshToken string) (*models.RefreshToken, error) {
	claims, err := s.codec.Verify(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	row, err := s.repomanager.RefreshTokens(tx).GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	if row.UserID != userID {
		return nil, common.ErrInvalidToken
	}
	return row, nil
}

func (s *AuthService) issuePair(ctx context.Context, tx dbx.DBTX, userID int64, device string) (*TokenPair, error) {
	now := s.codec.Now()

	id, err := common.MakeRandHexString(refreshTokenIDSize)
	if err != nil {
		return nil, err
	}

	access, accessExp, err := s.codec.Issue(auth.NewAccessClaims(userID, now), s.accessTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.codec.Issue(auth.NewRefreshClaims(userID, id, now), s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}

	row := &models.RefreshToken{
		ID:        id,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: refreshExp,
		Device:    device,
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, row); err != nil {
		return nil, err
	}

	return &TokenPair{
		UserID:           userID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		TokenType:        TokenTypeBearer,
	}, nil
}
