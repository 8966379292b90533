// Package grpc runs the gRPC side endpoint of the server. It exposes the
// standard grpc.health.v1 service whose status follows periodic readiness
// checks of the database and the blob store.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ReadinessCheck is implemented by dependencies that can report whether
// they are able to serve traffic.
type ReadinessCheck interface {
	IsReady(ctx context.Context) error
}

// ReadinessFunc adapts a function to ReadinessCheck.
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) IsReady(ctx context.Context) error { return f(ctx) }

type GRPCServer struct {
	address  string
	logger   logging.Logger
	checks   map[string]ReadinessCheck
	interval time.Duration
	health   *grpchealth.Server
}

func NewGRPCServer(a string, l logging.Logger, interval time.Duration, checks map[string]ReadinessCheck) *GRPCServer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		checks:   checks,
		interval: interval,
		health:   grpchealth.NewServer(),
	}
}

// Health exposes the underlying health server.
func (s *GRPCServer) Health() *grpchealth.Server {
	return s.health
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	// start pessimistic
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, s.health)

	s.probe(ctx)
	go s.readinessLoop(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping gRPC server")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) readinessLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

func (s *GRPCServer) probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for name, c := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		err := c.IsReady(cctx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "readiness check failed", "check", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.health.SetServingStatus("", status)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "grpc call", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	return resp, err
}
