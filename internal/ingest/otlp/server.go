package otlp

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"

	"brokle-tracehub/internal/engine"
)

// Server wraps the gRPC server exposing the three OTLP export
// services over a single listener, each handler backed directly by
// the engine facade.
type Server struct {
	grpcServer *grpc.Server
	addr       string
	logger     *slog.Logger
}

func NewServer(addr string, facade *engine.Facade, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(16 * 1024 * 1024),
		grpc.MaxSendMsgSize(16 * 1024 * 1024),
	)

	coltracepb.RegisterTraceServiceServer(grpcServer, NewTraceHandler(facade, logger))
	collogspb.RegisterLogsServiceServer(grpcServer, NewLogsHandler(facade, logger))
	colmetricspb.RegisterMetricsServiceServer(grpcServer, NewMetricsHandler())

	return &Server{grpcServer: grpcServer, addr: addr, logger: logger}
}

// Start binds addr and serves until the listener closes or Shutdown is
// called. Blocking; run it in its own goroutine.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("otlp: listen on %s: %w", s.addr, err)
	}
	s.logger.Info("otlp: grpc server listening", "addr", s.addr)
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("otlp: grpc serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, forcing a stop if ctx expires
// first.
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	case <-stopped:
		return nil
	}
}
