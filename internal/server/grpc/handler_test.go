package grpc

import (
	"context"
	"database/sql"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	pb "github.com/dmitrijs2005/authkeeper/internal/proto"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/gateway"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/storetest"
)

type sqlDB struct{ db *sql.DB }

func (s sqlDB) DB(context.Context) (*sql.DB, error) { return s.db, nil }

// startAuthServer serves the auth RPCs over a migrated SQLite database.
func startAuthServer(t *testing.T) (pb.AuthServiceClient, *sql.DB) {
	t.Helper()

	db := storetest.OpenSQLite(t)

	codec, err := auth.NewCodec([]byte("handler-secret"))
	require.NoError(t, err)
	hasher, err := cryptox.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()

	rm := repomanager.NewSQLiteRepositoryManager()
	authSvc, err := services.NewAuthService(rm, codec, hasher, cfg)
	require.NoError(t, err)
	gw := gateway.New(sqlDB{db}, authSvc, services.NewUserService(rm, hasher))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewGRPCServer("", logging.Nop{}, gw, 5*time.Second, NewAuthHandler(gw, logging.Nop{}).Registrar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})

	return pb.NewAuthServiceClient(conn), db
}

func bearer(ctx context.Context, access string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, common.BearerScheme+access)
}

func requireCode(t *testing.T, want codes.Code, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, status.Code(err), err.Error())
}

func TestAuthService_TokenLifecycle(t *testing.T) {
	client, db := startAuthServer(t)
	ctx := context.Background()

	user, err := client.Register(ctx, &pb.RegisterRequest{Email: "Alice@x.com", Username: "alice", Name: "Alice", Password: "pw123"})
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", user.GetEmail())
	assert.True(t, user.GetActive())

	pair, err := client.Login(ctx, &pb.LoginRequest{Identifier: "alice", Password: "pw123"})
	require.NoError(t, err)
	assert.Equal(t, user.GetId(), pair.GetUserId())
	assert.Equal(t, services.TokenTypeBearer, pair.GetTokenType())
	assert.Greater(t, pair.GetRefreshExpiresAt(), pair.GetAccessExpiresAt())

	var device string
	require.NoError(t, db.QueryRow(`SELECT device FROM refresh_tokens`).Scan(&device))
	assert.Contains(t, device, "grpc-go", "user agent is the default device label")

	me, err := client.Me(bearer(ctx, pair.GetAccessToken()), &pb.MeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "alice", me.GetUsername())

	rotated, err := client.Refresh(ctx, &pb.RefreshRequest{RefreshToken: pair.GetRefreshToken()})
	require.NoError(t, err)
	assert.NotEqual(t, pair.GetRefreshToken(), rotated.GetRefreshToken())

	_, err = client.Refresh(ctx, &pb.RefreshRequest{RefreshToken: pair.GetRefreshToken()})
	requireCode(t, codes.Unauthenticated, err)

	_, err = client.Logout(ctx, &pb.LogoutRequest{RefreshToken: rotated.GetRefreshToken()})
	require.NoError(t, err)
	_, err = client.Logout(ctx, &pb.LogoutRequest{RefreshToken: rotated.GetRefreshToken()})
	require.NoError(t, err, "logout is idempotent")

	_, err = client.Refresh(ctx, &pb.RefreshRequest{RefreshToken: rotated.GetRefreshToken()})
	requireCode(t, codes.Unauthenticated, err)
}

func TestAuthService_ErrorMapping(t *testing.T) {
	client, _ := startAuthServer(t)
	ctx := context.Background()

	_, err := client.Register(ctx, &pb.RegisterRequest{Email: "bob@x.com", Username: "bob", Password: "pw"})
	require.NoError(t, err)

	_, err = client.Register(ctx, &pb.RegisterRequest{Email: "bob@x.com", Username: "bobby", Password: "pw"})
	requireCode(t, codes.AlreadyExists, err)

	_, err = client.Register(ctx, &pb.RegisterRequest{Email: "", Username: "x", Password: "pw"})
	requireCode(t, codes.InvalidArgument, err)

	_, err = client.Login(ctx, &pb.LoginRequest{Identifier: "bob", Password: "wrong"})
	requireCode(t, codes.Unauthenticated, err)
	_, err = client.Login(ctx, &pb.LoginRequest{Identifier: "nobody", Password: "pw"})
	requireCode(t, codes.Unauthenticated, err)

	_, err = client.Refresh(ctx, &pb.RefreshRequest{RefreshToken: "garbage"})
	requireCode(t, codes.Unauthenticated, err)
}

func TestAuthService_ProtectedMethodsNeedAccessToken(t *testing.T) {
	client, _ := startAuthServer(t)
	ctx := context.Background()

	_, err := client.Me(ctx, &pb.MeRequest{})
	requireCode(t, codes.Unauthenticated, err)
	_, err = client.LogoutAll(ctx, &pb.LogoutAllRequest{})
	requireCode(t, codes.Unauthenticated, err)
	_, err = client.ListUsers(ctx, &pb.ListUsersRequest{})
	requireCode(t, codes.Unauthenticated, err)
	_, err = client.DeleteMe(bearer(ctx, "not-a-token"), &pb.DeleteMeRequest{})
	requireCode(t, codes.Unauthenticated, err)

	_, err = client.Register(ctx, &pb.RegisterRequest{Email: "carol@x.com", Username: "carol", Password: "pw"})
	require.NoError(t, err)
	pair, err := client.Login(ctx, &pb.LoginRequest{Identifier: "carol", Password: "pw", Device: "laptop"})
	require.NoError(t, err)
	_, err = client.Login(ctx, &pb.LoginRequest{Identifier: "carol", Password: "pw", Device: "phone"})
	require.NoError(t, err)

	authed := bearer(ctx, pair.GetAccessToken())

	list, err := client.ListUsers(authed, &pb.ListUsersRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, list.GetTotal())
	assert.EqualValues(t, services.DefaultPageSize, list.GetSize())
	require.Len(t, list.GetUsers(), 1)

	_, err = client.ListUsers(authed, &pb.ListUsersRequest{Page: 1, Size: services.MaxPageSize + 1})
	requireCode(t, codes.InvalidArgument, err)

	out, err := client.LogoutAll(authed, &pb.LogoutAllRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, out.GetRevoked())

	_, err = client.Refresh(ctx, &pb.RefreshRequest{RefreshToken: pair.GetRefreshToken()})
	requireCode(t, codes.Unauthenticated, err)

	_, err = client.DeleteMe(authed, &pb.DeleteMeRequest{})
	require.NoError(t, err)

	_, err = client.Me(authed, &pb.MeRequest{})
	requireCode(t, codes.Unauthenticated, err)
}
