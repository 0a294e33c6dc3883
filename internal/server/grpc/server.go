package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	pb "github.com/dmitrijs2005/authkeeper/internal/proto"
)

// Registrar attaches a service implementation to the server.
type Registrar func(grpc.ServiceRegistrar)

type GRPCServer struct {
	address       string
	logger        logging.Logger
	authenticator Authenticator
	timeout       time.Duration
	services      []Registrar
	health        *health.Server
}

// NewGRPCServer prepares a server that requires an access token on every
// method except the health service and the token-issuing auth RPCs.
func NewGRPCServer(addr string, l logging.Logger, a Authenticator, timeout time.Duration, services ...Registrar) *GRPCServer {
	return &GRPCServer{
		address:       addr,
		logger:        l.With("module", "grpc_server"),
		authenticator: a,
		timeout:       timeout,
		services:      services,
		health:        health.NewServer(),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	grpc_prometheus.EnableHandlingTimeHistogram()

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			Recover(s.logger),
			Logging(s.logger),
			Timeout(s.timeout),
			AccessToken(s.authenticator, isPublicMethod),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			grpc_prometheus.StreamServerInterceptor,
		),
	)

	healthpb.RegisterHealthServer(srv, s.health)
	for _, register := range s.services {
		register(srv)
	}
	grpc_prometheus.Register(srv)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}

	return nil
}

const healthService = "/" + healthpb.Health_ServiceDesc.ServiceName + "/"

// publicMethods authenticate with credentials or a refresh token in the
// request body.
var publicMethods = map[string]bool{
	pb.AuthService_Register_FullMethodName: true,
	pb.AuthService_Login_FullMethodName:    true,
	pb.AuthService_Refresh_FullMethodName:  true,
	pb.AuthService_Logout_FullMethodName:   true,
}

func isPublicMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, healthService) || publicMethods[fullMethod]
}
