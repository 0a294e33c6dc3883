// Package gateway is the boundary of the auth domain. Every operation runs in
// its own transaction, is traced and metered, and reports failures with the
// domain error taxonomy. Unauthorized subtypes are collapsed to
// common.ErrorUnauthorized so callers cannot tell why a credential was refused.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DBProvider yields the shared pool. *dbx.Handle implements it.
type DBProvider interface {
	DB(ctx context.Context) (*sql.DB, error)
}

type Gateway struct {
	db            DBProvider
	auth          *services.AuthService
	users         *services.UserService
	revokeOnReuse bool

	logger  logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Gateway)

// WithRevokeOnReuse makes a detected refresh token reuse revoke every refresh
// token of the affected user.
func WithRevokeOnReuse(on bool) Option {
	return func(g *Gateway) { g.revokeOnReuse = on }
}

func WithLogger(l logging.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

func New(db DBProvider, auth *services.AuthService, users *services.UserService, opts ...Option) *Gateway {
	g := &Gateway{db: db, auth: auth, users: users}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = logging.Nop{}
	}
	if g.metrics == nil {
		g.metrics = metrics.NewNop()
	}
	if g.tracer == nil {
		g.tracer = telemetry.Tracer()
	}
	return g
}

func (g *Gateway) Register(ctx context.Context, in services.NewUser) (*models.User, error) {
	var user *models.User
	err := g.run(ctx, "register", []attribute.KeyValue{attribute.String("user.identifier", logging.RedactIdentifier(in.Email))},
		func(ctx context.Context, tx dbx.DBTX) (err error) {
			user, err = g.users.Register(ctx, tx, in)
			return err
		})
	return user, err
}

func (g *Gateway) Login(ctx context.Context, req services.LoginRequest) (*services.TokenPair, error) {
	var pair *services.TokenPair
	err := g.run(ctx, "login", []attribute.KeyValue{attribute.String("user.identifier", logging.RedactIdentifier(req.Identifier))},
		func(ctx context.Context, tx dbx.DBTX) (err error) {
			pair, err = g.auth.Login(ctx, tx, req)
			return err
		})
	return pair, err
}

// Refresh rotates refreshToken. When reuse of a revoked token is detected
// and the reuse policy is on, every token of the user is revoked in a
// separate transaction after the failed rotation rolled back.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	var pair *services.TokenPair
	err := g.run(ctx, "refresh", nil, func(ctx context.Context, tx dbx.DBTX) (err error) {
		pair, err = g.auth.Refresh(ctx, tx, refreshToken)
		return err
	})
	if err == nil {
		return pair, nil
	}

	var reuse *services.ReuseError
	if errors.As(err, &reuse) {
		g.onReuse(ctx, reuse)
	}
	return nil, collapse(err)
}

func (g *Gateway) Logout(ctx context.Context, refreshToken string) error {
	return g.run(ctx, "logout", nil, func(ctx context.Context, tx dbx.DBTX) error {
		return g.auth.Logout(ctx, tx, refreshToken)
	})
}

// LogoutAll revokes every active refresh token of userID.
func (g *Gateway) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := g.run(ctx, "logout_all", []attribute.KeyValue{attribute.Int64("user.id", userID)},
		func(ctx context.Context, tx dbx.DBTX) (err error) {
			n, err = g.auth.RevokeAll(ctx, tx, userID)
			return err
		})
	return n, err
}

// Authenticate resolves an access token to the active user it was issued to.
func (g *Gateway) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	var user *models.User
	err := g.run(ctx, "authenticate", nil, func(ctx context.Context, tx dbx.DBTX) (err error) {
		user, err = g.auth.Authenticate(ctx, tx, accessToken)
		return err
	})
	return user, err
}

func (g *Gateway) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user *models.User
	err := g.run(ctx, "get_user", []attribute.KeyValue{attribute.Int64("user.id", id)},
		func(ctx context.Context, tx dbx.DBTX) (err error) {
			user, err = g.users.Get(ctx, tx, id)
			return err
		})
	return user, err
}

func (g *Gateway) UpdateUser(ctx context.Context, id int64, upd services.UserUpdate) (*models.User, error) {
	var user *models.User
	err := g.run(ctx, "update_user", []attribute.KeyValue{attribute.Int64("user.id", id)},
		func(ctx context.Context, tx dbx.DBTX) (err error) {
			user, err = g.users.Update(ctx, tx, id, upd)
			return err
		})
	return user, err
}

func (g *Gateway) DeleteUser(ctx context.Context, id int64) error {
	return g.run(ctx, "delete_user", []attribute.KeyValue{attribute.Int64("user.id", id)},
		func(ctx context.Context, tx dbx.DBTX) error {
			return g.users.Delete(ctx, tx, id)
		})
}

func (g *Gateway) ListUsers(ctx context.Context, page, size int) (*services.UserPage, error) {
	var out *services.UserPage
	err := g.run(ctx, "list_users", []attribute.KeyValue{attribute.Int("page", page), attribute.Int("size", size)},
		func(ctx context.Context, tx dbx.DBTX) (err error) {
			out, err = g.users.List(ctx, tx, page, size)
			return err
		})
	return out, err
}

func (g *Gateway) onReuse(ctx context.Context, reuse *services.ReuseError) {
	log := logging.From(ctx, g.logger)
	g.metrics.ReuseDetected.Inc()

	log.Warn(ctx, "refresh token reuse detected",
		"user_id", reuse.UserID,
		"token", logging.ShortID(reuse.TokenID),
		"revoke_all", g.revokeOnReuse)

	if !g.revokeOnReuse {
		return
	}

	n, err := g.LogoutAll(ctx, reuse.UserID)
	if err != nil {
		log.Error(ctx, "revoke after reuse failed", "user_id", reuse.UserID, "error", err)
		return
	}
	g.metrics.ReuseRevoked.Add(float64(n))
	log.Info(ctx, "revoked tokens after reuse", "user_id", reuse.UserID, "revoked", n)
}

// run executes fn in a transaction and records the outcome. The returned
// error is already collapsed, except for Refresh which needs the detailed one.
func (g *Gateway) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	ctx, span := g.tracer.Start(ctx, "auth."+op, trace.WithAttributes(attrs...))
	defer span.End()

	log := logging.From(ctx, g.logger)
	start := time.Now()

	err := g.inTx(ctx, fn)

	g.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		g.metrics.Operations.WithLabelValues(op, metrics.ResultOK).Inc()
		log.Debug(ctx, "auth operation succeeded", "op", op)
		return nil
	}

	reason := Reason(err)
	g.metrics.Operations.WithLabelValues(op, metrics.ResultError).Inc()
	g.metrics.Failures.WithLabelValues(op, reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	switch common.KindOf(err) {
	case common.KindInternal:
		log.Error(ctx, "auth operation failed", "op", op, "reason", reason, "error", err)
	default:
		log.Warn(ctx, "auth operation rejected", "op", op, "reason", reason)
	}

	if op == "refresh" {
		return err
	}
	return collapse(err)
}

func (g *Gateway) inTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	db, err := g.db.DB(ctx)
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return dbx.WithTx(ctx, db, nil, fn)
}

// collapse hides which credential check failed.
func collapse(err error) error {
	if errors.Is(err, common.ErrorUnauthorized) {
		return common.ErrorUnauthorized
	}
	return err
}

// Reason is a short label for err used in logs, metrics and spans.
func Reason(err error) string {
	var reuse *services.ReuseError
	switch {
	case errors.As(err, &reuse):
		return "token_reused"
	case errors.Is(err, common.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, common.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, common.ErrTokenTypeMismatch):
		return "token_type_mismatch"
	case errors.Is(err, common.ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, common.ErrInvalidToken):
		return "invalid_token"
	}
	return common.KindOf(err).String()
}
