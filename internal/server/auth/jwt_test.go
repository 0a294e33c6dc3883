package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newTestCodec(t *testing.T, secret string, opts ...Option) (*Codec, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c, err := NewCodec([]byte(secret), append([]Option{WithClock(clk.Now), WithIssuer("authkeeper")}, opts...)...)
	require.NoError(t, err)
	return c, clk
}

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t, "super-secret")

	tok, exp, err := c.Issue(Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ID: "row-1"},
		Type:             TokenTypeRefresh,
	}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, clk.t.Add(time.Hour), exp)

	claims, err := c.Verify(tok, TokenTypeRefresh)
	require.NoError(t, err)

	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
	assert.Equal(t, "row-1", claims.ID)
	assert.Equal(t, "authkeeper", claims.Issuer)
	assert.True(t, clk.t.Equal(claims.IssuedAt.Time))
	assert.True(t, exp.Equal(claims.ExpiresAt.Time))
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t, "secret")

	tok, _, err := c.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}, Type: TokenTypeAccess}, time.Minute)
	require.NoError(t, err)

	clk.t = clk.t.Add(2 * time.Minute)

	_, err = c.Verify(tok, TokenTypeAccess)
	require.ErrorIs(t, err, common.ErrTokenExpired)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestVerify_Leeway(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t, "secret", WithLeeway(time.Minute))

	tok, _, err := c.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}, Type: TokenTypeAccess}, time.Minute)
	require.NoError(t, err)

	clk.t = clk.t.Add(90 * time.Second)

	_, err = c.Verify(tok, TokenTypeAccess)
	assert.NoError(t, err)
}

func TestVerify_TypeMismatch(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t, "secret")

	access, _, err := c.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}, Type: TokenTypeAccess}, time.Minute)
	require.NoError(t, err)
	refresh, _, err := c.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ID: "x"}, Type: TokenTypeRefresh}, time.Hour)
	require.NoError(t, err)

	_, err = c.Verify(access, TokenTypeRefresh)
	assert.ErrorIs(t, err, common.ErrTokenTypeMismatch)

	_, err = c.Verify(refresh, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrTokenTypeMismatch)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	right, _ := newTestCodec(t, "right-secret")
	wrong, _ := newTestCodec(t, "wrong-secret")

	tok, _, err := right.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}, Type: TokenTypeAccess}, time.Hour)
	require.NoError(t, err)

	_, err = wrong.Verify(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_WrongIssuer(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t, "secret")
	other, err := NewCodec([]byte("secret"), WithIssuer("someone-else"))
	require.NoError(t, err)

	tok, _, err := other.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}, Type: TokenTypeAccess}, time.Hour)
	require.NoError(t, err)

	_, err = c.Verify(tok, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t, "secret")

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "authkeeper",
			ExpiresAt: jwt.NewNumericDate(clk.t.Add(time.Hour)),
		},
		Type: TokenTypeAccess,
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = c.Verify(hs512, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Verify(none, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_MissingClaims(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t, "secret")

	sign := func(cl Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString([]byte("secret"))
		require.NoError(t, err)
		return s
	}
	exp := jwt.NewNumericDate(clk.t.Add(time.Hour))

	noExp := sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "authkeeper"}, Type: TokenTypeAccess})
	_, err := c.Verify(noExp, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	noSub := sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "authkeeper", ExpiresAt: exp}, Type: TokenTypeAccess})
	_, err = c.Verify(noSub, TokenTypeAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	noJti := sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "authkeeper", ExpiresAt: exp}, Type: TokenTypeRefresh})
	_, err = c.Verify(noJti, TokenTypeRefresh)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_MalformedString(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t, "k")

	for _, s := range []string{"", "not.a.jwt", "abc"} {
		_, err := c.Verify(s, TokenTypeAccess)
		assert.True(t, errors.Is(err, common.ErrInvalidToken), "input %q: %v", s, err)
	}
}

func TestNewCodec_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(nil)
	assert.Error(t, err)
}

func TestIssue_Validation(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t, "k")

	_, _, err := c.Issue(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}, Type: "id"}, time.Minute)
	assert.Error(t, err)

	_, _, err = c.Issue(Claims{Type: TokenTypeAccess}, time.Minute)
	assert.Error(t, err)
}

func TestClaims_UserID_Bad(t *testing.T) {
	t.Parallel()

	c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc"}}
	_, err := c.UserID()
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestClaimConstructors(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t, "secret")

	tok, _, err := c.Issue(NewRefreshClaims(5, "row-5", clk.t), time.Hour)
	require.NoError(t, err)
	claims, err := c.Verify(tok, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "5", claims.Subject)
	assert.Equal(t, "row-5", claims.ID)

	tok, _, err = c.Issue(NewAccessClaims(5, clk.t), time.Minute)
	require.NoError(t, err)
	claims, err = c.Verify(tok, TokenTypeAccess)
	require.NoError(t, err)
	assert.Empty(t, claims.ID)
}
