// Package server wires the authkeeper server together: configuration,
// logging, the shared database handle, the auth gateway, the gRPC server,
// the metrics endpoint and the periodic refresh token cleanup.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/filex"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/cleanup"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/gateway"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/telemetry"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

const serviceName = "authkeeper"

type App struct {
	config      *config.Config
	logger      logging.Logger
	handle      *dbx.Handle
	repomanager repomanager.RepositoryManager
	registry    *prometheus.Registry
	gateway     *gateway.Gateway
	sweeper     *cleanup.Sweeper
}

// NewApp builds every component from c. No connection is made until the
// database is first used.
func NewApp(c *config.Config) (*App, error) {

	logger, err := logging.New(os.Stdout, c.LogLevel, c.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	rm, err := repomanager.New(c.DatabaseDriver)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	dsn := c.DatabaseDSN
	if c.DatabaseDriver == config.DriverSQLite && !strings.ContainsAny(dsn, "?:") {
		// a bare file path: create its directory and add the pragmas
		if _, err := filex.EnsureParentDir(dsn); err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		dsn = dbx.SQLiteDSN(dsn)
	}
	handle := dbx.NewHandle(rm.Driver(), dsn, dbx.PoolOptions{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	})

	hasher, err := cryptox.NewHasher(c.PasswordHashAlgorithm, c.PasswordHashCost)
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	codec, err := auth.NewCodec([]byte(c.SecretKey), auth.WithIssuer(c.Issuer))
	if err != nil {
		return nil, fmt.Errorf("token codec init error: %w", err)
	}

	authService, err := services.NewAuthService(rm, codec, hasher, c)
	if err != nil {
		return nil, fmt.Errorf("auth service init error: %w", err)
	}
	userService := services.NewUserService(rm, hasher)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	gw := gateway.New(handle, authService, userService,
		gateway.WithRevokeOnReuse(c.RevokeOnReuse),
		gateway.WithLogger(logger.With("module", "gateway")),
		gateway.WithMetrics(m),
		gateway.WithTracer(telemetry.Tracer()),
	)

	sweeper := cleanup.NewSweeper(handle, rm, cleanup.Config{
		Interval:   c.CleanupInterval,
		Grace:      c.CleanupGrace,
		BatchSize:  c.CleanupBatchSize,
		RunOnStart: true,
	}, cleanup.WithLogger(logger.With("module", "cleanup")), cleanup.WithMetrics(m))

	return &App{
		config:      c,
		logger:      logger,
		handle:      handle,
		repomanager: rm,
		registry:    registry,
		gateway:     gw,
		sweeper:     sweeper,
	}, nil
}

// Gateway exposes the auth operations.
func (app *App) Gateway() *gateway.Gateway { return app.gateway }

// Sweeper exposes the refresh token cleanup.
func (app *App) Sweeper() *cleanup.Sweeper { return app.sweeper }

func (app *App) Logger() logging.Logger { return app.logger }

// Migrate applies pending schema migrations.
func (app *App) Migrate(ctx context.Context) error {
	db, err := app.handle.DB(ctx)
	if err != nil {
		return err
	}
	return app.repomanager.RunMigrations(ctx, db)
}

// Close releases the database pool.
func (app *App) Close() error {
	return app.handle.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	authHandler := gs.NewAuthHandler(app.gateway, app.logger)
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.gateway, app.config.RequestTimeout, authHandler.Registrar())

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
	}
}

// metricsHandler serves /metrics and /healthz.
func (app *App) metricsHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		db, err := app.handle.DB(ctx)
		if err == nil {
			err = db.PingContext(ctx)
		}
		if err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gatherers := prometheus.Gatherers{app.registry, prometheus.DefaultGatherer}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))

	return mux
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.MetricsAddr,
		Handler:           app.metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "metrics server failed", "error", err)
		cancelFunc()
	}
}

// Run migrates the schema, starts the servers and the cleanup loop, and
// blocks until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, app.config.OTLPEndpoint)
	if err != nil {
		app.logger.Warn(ctx, "tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	if err := app.Migrate(ctx); err != nil {
		_ = app.Close()
		return fmt.Errorf("migrations: %w", err)
	}

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	app.logger.Info(context.Background(), "Stopped")
	return app.Close()
}
