// Package cryptox provides password hashing for stored credentials.
package cryptox

import (
	"errors"
	"fmt"
)

// ErrEmptyPassword is returned by Hash for an empty plaintext.
var ErrEmptyPassword = errors.New("empty password")

// PasswordHasher turns plaintext passwords into self-describing hash strings
// and verifies candidates against them.
//
// Verify never panics and never returns an error: a malformed or foreign hash
// simply does not match.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// NewHasher returns the hasher for algorithm ("bcrypt" or "argon2id").
// cost is the bcrypt work factor or the argon2id time parameter; zero selects
// the default.
func NewHasher(algorithm string, cost int) (PasswordHasher, error) {
	switch algorithm {
	case "bcrypt", "":
		return NewBcryptHasher(cost)
	case "argon2id":
		h := NewArgon2Hasher()
		if cost > argon2MaxTime {
			return nil, fmt.Errorf("argon2id time parameter %d exceeds %d", cost, argon2MaxTime)
		}
		if cost > 0 {
			h.Time = uint32(cost)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown password hash algorithm %q", algorithm)
	}
}
