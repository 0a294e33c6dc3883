package authctl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

func newBackend(t *testing.T) *server.App {
	t.Helper()

	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDriver = config.DriverSQLite
	c.DatabaseDSN = filepath.Join(t.TempDir(), "auth.db")
	c.PasswordHashCost = 4
	c.LogLevel = "error"

	app, err := server.NewApp(c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func stubTerminal(t *testing.T, terminal bool, password string) {
	t.Helper()
	oldIs, oldRead := isTerminal, readPassword
	isTerminal = func(int) bool { return terminal }
	readPassword = func(int) ([]byte, error) { return []byte(password), nil }
	t.Cleanup(func() { isTerminal, readPassword = oldIs, oldRead })
}

func TestRun_CommandAfterConfigFlags(t *testing.T) {
	var out bytes.Buffer
	app := NewApp(newBackend(t), strings.NewReader(""), &out)

	require.NoError(t, app.Run(context.Background(), []string{"-driver", "sqlite", "-d", "ignored.db", "migrate"}))
	assert.Contains(t, out.String(), "migrations applied")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	app := NewApp(newBackend(t), strings.NewReader(""), &out)

	err := app.Run(context.Background(), []string{"frobnicate"})
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, out.String(), "usage: authctl")
}

func TestRun_Workflow(t *testing.T) {
	stubTerminal(t, false, "")
	ctx := context.Background()
	backend := newBackend(t)

	var out bytes.Buffer
	app := NewApp(backend, strings.NewReader("pw123\n"), &out)

	require.NoError(t, app.Run(ctx, []string{"migrate"}))
	assert.Contains(t, out.String(), "migrations applied")

	require.NoError(t, app.Run(ctx, []string{"create-user", "-email", "alice@x.com", "-username", "alice", "-name", "Alice"}))
	assert.Contains(t, out.String(), "created user id=1 email=alice@x.com username=alice")

	pair, err := backend.Gateway().Login(ctx, services.LoginRequest{Identifier: "alice", Password: "pw123"})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, app.Run(ctx, []string{"revoke-all", "-user", "1"}))
	assert.Equal(t, "revoked 1 refresh tokens\n", out.String())

	_, err = backend.Gateway().Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err)

	out.Reset()
	require.NoError(t, app.Run(ctx, []string{"sweep"}))
	assert.Equal(t, "deleted 0 refresh tokens\n", out.String())
}

func TestRun_CreateUserPromptsAndReadsTerminal(t *testing.T) {
	stubTerminal(t, true, "secret")
	ctx := context.Background()
	backend := newBackend(t)
	require.NoError(t, backend.Migrate(ctx))

	var out bytes.Buffer
	app := NewApp(backend, strings.NewReader("bob@x.com\nbob\n"), &out)

	require.NoError(t, app.Run(ctx, []string{"create-user"}))
	assert.Contains(t, out.String(), "Enter password: ")
	assert.Contains(t, out.String(), "username=bob")

	_, err := backend.Gateway().Login(ctx, services.LoginRequest{Identifier: "bob@x.com", Password: "secret"})
	assert.NoError(t, err)
}

func TestRun_RevokeAllRequiresUser(t *testing.T) {
	var out bytes.Buffer
	app := NewApp(newBackend(t), strings.NewReader(""), &out)

	assert.ErrorIs(t, app.Run(context.Background(), []string{"revoke-all"}), ErrUsage)
	assert.ErrorIs(t, app.Run(context.Background(), []string{"revoke-all", "-bogus"}), ErrUsage)
}

func TestRun_ListUsers(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	require.NoError(t, backend.Migrate(ctx))

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := backend.Gateway().Register(ctx, services.NewUser{Email: name + "@x.com", Username: name, Password: "pw"})
		require.NoError(t, err)
	}

	var out bytes.Buffer
	app := NewApp(backend, strings.NewReader(""), &out)

	require.NoError(t, app.Run(ctx, []string{"list-users", "-page", "2", "-size", "2"}))
	assert.Equal(t, "3\tcarol@x.com\tcarol\tactive=true\npage 2/2, 3 users\n", out.String())

	err := app.Run(ctx, []string{"list-users", "-size", "0"})
	assert.ErrorIs(t, err, common.ErrorInvalidArgument)
}
