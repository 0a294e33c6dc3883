// Package common defines shared constants and the domain error taxonomy used
// across authkeeper layers. Callers should use errors.Is to match these values
// and KindOf to classify them.
package common

var (
	// Repository-level errors.
	ErrorNotFound = NewError(KindNotFound, "not found", nil)
	ErrorConflict = NewError(KindConflict, "already exists", nil)

	// Service-level errors (generic/internal flow control).
	ErrorInternal        = NewError(KindInternal, "internal error", nil)
	ErrorUnauthorized    = NewError(KindUnauthorized, "unauthorized", nil)
	ErrorInvalidArgument = NewError(KindInvalidArgument, "invalid argument", nil)

	// Credential errors. Unknown account, wrong password and inactive account
	// are deliberately the same value.
	ErrInvalidCredentials = NewError(KindUnauthorized, "invalid credentials", ErrorUnauthorized)

	// Token errors. They are distinguished internally for logs and metrics and
	// collapsed to ErrorUnauthorized at the boundary.
	ErrInvalidToken      = NewError(KindUnauthorized, "invalid token", ErrorUnauthorized)
	ErrTokenExpired      = NewError(KindUnauthorized, "token expired", ErrorUnauthorized)
	ErrTokenTypeMismatch = NewError(KindUnauthorized, "token type mismatch", ErrorUnauthorized)
	ErrTokenRevoked      = NewError(KindUnauthorized, "token revoked", ErrorUnauthorized)
)
