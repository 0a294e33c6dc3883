package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshToken_Usable(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		tok  RefreshToken
		want bool
	}{
		{name: "active", tok: RefreshToken{ExpiresAt: now.Add(time.Minute)}, want: true},
		{name: "revoked", tok: RefreshToken{ExpiresAt: now.Add(time.Minute), Revoked: true}, want: false},
		{name: "expired", tok: RefreshToken{ExpiresAt: now.Add(-time.Minute)}, want: false},
		{name: "expires exactly now", tok: RefreshToken{ExpiresAt: now}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tok.Usable(now))
		})
	}
}
