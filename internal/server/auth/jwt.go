// Package auth signs and verifies the JWT artifacts handed to clients.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carries the registered claims plus the token type. Subject holds the
// decimal user id; ID (jti) is set only on refresh tokens and equals the
// refresh token row id.
type Claims struct {
	jwt.RegisteredClaims
	Type TokenType `json:"type"`
}

// NewAccessClaims builds access-token claims for userID issued at iat.
func NewAccessClaims(userID int64, iat time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(userID, 10),
			IssuedAt: jwt.NewNumericDate(iat),
		},
		Type: TokenTypeAccess,
	}
}

// NewRefreshClaims builds refresh-token claims bound to the row tokenID.
func NewRefreshClaims(userID int64, tokenID string, iat time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(userID, 10),
			ID:       tokenID,
			IssuedAt: jwt.NewNumericDate(iat),
		},
		Type: TokenTypeRefresh,
	}
}

// UserID parses Subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", common.ErrInvalidToken)
	}
	return id, nil
}

// Codec issues and verifies HS256 tokens. It is immutable after NewCodec and
// safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

type Option func(*Codec)

// WithIssuer sets the iss claim on issued tokens and requires it on verify.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithLeeway tolerates clock skew when checking exp.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) { c.leeway = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithLeeway(c.leeway),
	}
	if c.issuer != "" {
		popts = append(popts, jwt.WithIssuer(c.issuer))
	}
	c.parser = jwt.NewParser(popts...)

	return c, nil
}

// Now returns the codec clock reading.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Issue signs claims with iat defaulting to now and exp = iat + ttl. It
// returns the signed token and its expiry as encoded in the token.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if claims.Type != TokenTypeAccess && claims.Type != TokenTypeRefresh {
		return "", time.Time{}, fmt.Errorf("unknown token type %q", claims.Type)
	}
	if claims.Subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}

	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(c.now())
	}
	claims.ExpiresAt = jwt.NewNumericDate(claims.IssuedAt.Add(ttl))
	if c.issuer != "" {
		claims.Issuer = c.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify checks signature, algorithm, issuer and expiry, then the token type.
//
// Errors: common.ErrTokenExpired, common.ErrTokenTypeMismatch, otherwise
// common.ErrInvalidToken.
func (c *Codec) Verify(tokenString string, expected TokenType) (*Claims, error) {
	claims := &Claims{}

	token, err := c.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	if claims.Type != expected {
		return nil, common.ErrTokenTypeMismatch
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
	}

	if expected == TokenTypeRefresh && claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", common.ErrInvalidToken)
	}

	return claims, nil
}
