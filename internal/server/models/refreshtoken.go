package models

import "time"

// RefreshToken is the server-side record behind a refresh token artifact.
// ID doubles as the artifact's jti.
type RefreshToken struct {
	ID        string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	Device    string
}

// Usable reports whether the token may still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
