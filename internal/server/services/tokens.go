// Package services contains server-side business logic: the token lifecycle
// (AuthService) and account management (UserService). Every operation runs
// against a caller-supplied transaction and never commits it.
package services

import (
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// TokenTypeBearer is the token_type reported with every pair.
const TokenTypeBearer = "bearer"

// refreshTokenIDSize is the number of random bytes behind a refresh token row id.
const refreshTokenIDSize = 32

// TokenPair bundles a short-lived access token and a rotating refresh token.
type TokenPair struct {
	UserID           int64
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	TokenType        string
}

// LoginRequest carries credentials. Identifier is an email or a username.
type LoginRequest struct {
	Identifier string
	Password   string
	Device     string
}

// ReuseError reports a refresh with a token that was already revoked, which
// usually means the token was stolen or replayed. It matches
// common.ErrTokenRevoked.
type ReuseError struct {
	UserID  int64
	TokenID string
}

func (e *ReuseError) Error() string { return "refresh token reuse detected" }

func (e *ReuseError) Unwrap() error { return common.ErrTokenRevoked }
