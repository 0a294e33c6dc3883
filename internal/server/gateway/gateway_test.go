package gateway

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/storetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixedDB struct{ db *sql.DB }

func (f fixedDB) DB(context.Context) (*sql.DB, error) { return f.db, nil }

type failingDB struct{}

func (failingDB) DB(context.Context) (*sql.DB, error) { return nil, errors.New("db down") }

// brokenInsertManager makes refresh token inserts fail while broken is set.
type brokenInsertManager struct {
	repomanager.RepositoryManager
	broken atomic.Bool
}

func (m *brokenInsertManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return brokenInsertTokens{Repository: m.RepositoryManager.RefreshTokens(db), broken: &m.broken}
}

type brokenInsertTokens struct {
	refreshtokens.Repository
	broken *atomic.Bool
}

func (r brokenInsertTokens) Create(ctx context.Context, token *models.RefreshToken) error {
	if r.broken.Load() {
		return errors.New("insert failed")
	}
	return r.Repository.Create(ctx, token)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	gw    *Gateway
	clock *clock
	reg   *prometheus.Registry
	db    *sql.DB
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithManager(t, repomanager.NewSQLiteRepositoryManager(), opts...)
}

func newFixtureWithManager(t *testing.T, rm repomanager.RepositoryManager, opts ...Option) *fixture {
	t.Helper()

	db := storetest.OpenSQLite(t)
	clk := &clock{t: time.Now().UTC().Truncate(time.Second)}

	codec, err := auth.NewCodec([]byte("gateway-secret"), auth.WithClock(clk.Now), auth.WithIssuer("authkeeper"))
	require.NoError(t, err)
	hasher, err := cryptox.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AccessTokenValidityDuration = 15 * time.Minute
	cfg.RefreshTokenValidityDuration = 24 * time.Hour

	authSvc, err := services.NewAuthService(rm, codec, hasher, cfg)
	require.NoError(t, err)
	userSvc := services.NewUserService(rm, hasher)

	reg := prometheus.NewRegistry()
	gw := New(fixedDB{db}, authSvc, userSvc, append([]Option{WithMetrics(metrics.New(reg))}, opts...)...)

	return &fixture{gw: gw, clock: clk, reg: reg, db: db}
}

func (f *fixture) registerAlice(t *testing.T) int64 {
	t.Helper()
	u, err := f.gw.Register(context.Background(), services.NewUser{
		Email: "alice@x.com", Username: "alice", Name: "Alice", Password: "pw123",
	})
	require.NoError(t, err)
	return u.ID
}

func (f *fixture) counter(t *testing.T, name string) float64 {
	t.Helper()
	mfs, err := f.reg.Gather()
	require.NoError(t, err)

	var sum float64
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				sum += m.GetCounter().GetValue()
			}
		}
	}
	return sum
}

func TestAliceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAlice(t)

	pair, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice@x.com", Password: "pw123"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	rotated, err := f.gw.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, err = f.gw.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	require.NoError(t, f.gw.Logout(ctx, rotated.RefreshToken))

	_, err = f.gw.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestLogin_ByUsernameAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerAlice(t)

	pair, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123", Device: "cli"})
	require.NoError(t, err)
	assert.Equal(t, id, pair.UserID)

	u, err := f.gw.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", u.Email)

	_, err = f.gw.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAlice(t)

	_, errUnknown := f.gw.Login(ctx, services.LoginRequest{Identifier: "bob@x.com", Password: "pw123"})
	_, errWrong := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice@x.com", Password: "wrong"})

	assert.Same(t, common.ErrorUnauthorized, errUnknown)
	assert.Same(t, common.ErrorUnauthorized, errWrong)
	assert.Equal(t, 2.0, f.counter(t, "authkeeper_auth_failures_total"))
}

func TestLogout_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAlice(t)

	pair, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123"})
	require.NoError(t, err)

	require.NoError(t, f.gw.Logout(ctx, pair.RefreshToken))
	require.NoError(t, f.gw.Logout(ctx, pair.RefreshToken))

	_, err = f.gw.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRefresh_ExpiredArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAlice(t)

	pair, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123"})
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)

	_, err = f.gw.Refresh(ctx, pair.RefreshToken)
	assert.Same(t, common.ErrorUnauthorized, err)
}

func TestRefresh_ConcurrentRotationHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAlice(t)

	pair, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123"})
	require.NoError(t, err)

	const workers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.gw.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	}
	assert.Equal(t, 1, wins)

	var active int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens WHERE revoked = 0`).Scan(&active))
	assert.Equal(t, 1, active)
}

func TestRefresh_ReuseKeepsOtherSessionsByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerAlice(t)

	a, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123", Device: "a"})
	require.NoError(t, err)
	a2, err := f.gw.Refresh(ctx, a.RefreshToken)
	require.NoError(t, err)

	_, err = f.gw.Refresh(ctx, a.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, 1.0, f.counter(t, "authkeeper_auth_refresh_reuse_detected_total"))

	_, err = f.gw.Refresh(ctx, a2.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_ReuseRevokesLineage(t *testing.T) {
	f := newFixture(t, WithRevokeOnReuse(true))
	ctx := context.Background()
	f.registerAlice(t)

	a, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123", Device: "a"})
	require.NoError(t, err)
	b, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123", Device: "b"})
	require.NoError(t, err)
	a2, err := f.gw.Refresh(ctx, a.RefreshToken)
	require.NoError(t, err)

	_, err = f.gw.Refresh(ctx, a.RefreshToken)
	assert.Same(t, common.ErrorUnauthorized, err)
	assert.Equal(t, 2.0, f.counter(t, "authkeeper_auth_refresh_reuse_revoked_tokens_total"))

	_, err = f.gw.Refresh(ctx, a2.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.gw.Refresh(ctx, b.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestUserLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerAlice(t)

	_, err := f.gw.Register(ctx, services.NewUser{Email: "ALICE@x.com", Username: "other", Password: "pw"})
	assert.ErrorIs(t, err, common.ErrorConflict)

	pair, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123"})
	require.NoError(t, err)

	name := "Alice Liddell"
	u, err := f.gw.UpdateUser(ctx, id, services.UserUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, u.Name)

	inactive := false
	_, err = f.gw.UpdateUser(ctx, id, services.UserUpdate{Active: &inactive})
	require.NoError(t, err)

	_, err = f.gw.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123"})
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	require.NoError(t, f.gw.DeleteUser(ctx, id))
	_, err = f.gw.GetUser(ctx, id)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	var rows int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens`).Scan(&rows))
	assert.Zero(t, rows)
}

func TestRefresh_FailedInsertRollsBackRevoke(t *testing.T) {
	rm := &brokenInsertManager{RepositoryManager: repomanager.NewSQLiteRepositoryManager()}
	f := newFixtureWithManager(t, rm)
	ctx := context.Background()
	f.registerAlice(t)

	pair, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123"})
	require.NoError(t, err)

	rm.broken.Store(true)
	_, err = f.gw.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, common.KindInternal, common.KindOf(err))

	var total, revoked int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(revoked), 0) FROM refresh_tokens`).Scan(&total, &revoked))
	assert.Equal(t, 1, total)
	assert.Zero(t, revoked, "revoke must roll back with the failed insert")

	rm.broken.Store(false)
	rotated, err := f.gw.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := f.gw.Register(ctx, services.NewUser{Email: name + "@x.com", Username: name, Password: "pw"})
		require.NoError(t, err)
	}

	page, err := f.gw.ListUsers(ctx, 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "c", page.Users[0].Username)

	_, err = f.gw.ListUsers(ctx, 1, services.MaxPageSize+1)
	assert.ErrorIs(t, err, common.ErrorInvalidArgument)
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.registerAlice(t)

	for i := 0; i < 3; i++ {
		_, err := f.gw.Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123"})
		require.NoError(t, err)
	}

	n, err := f.gw.LogoutAll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = f.gw.LogoutAll(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGateway_DBUnavailable(t *testing.T) {
	f := newFixture(t)
	f.gw.db = failingDB{}

	_, err := f.gw.Login(context.Background(), services.LoginRequest{Identifier: "alice", Password: "pw123"})
	require.Error(t, err)
	assert.Equal(t, common.KindInternal, common.KindOf(err))
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&services.ReuseError{UserID: 1}, "token_reused"},
		{common.ErrInvalidCredentials, "invalid_credentials"},
		{common.ErrTokenExpired, "token_expired"},
		{common.ErrTokenTypeMismatch, "token_type_mismatch"},
		{common.ErrTokenRevoked, "token_revoked"},
		{common.ErrInvalidToken, "invalid_token"},
		{services.ErrEmailTaken, "conflict"},
		{common.ErrorNotFound, "not_found"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err))
	}
}
