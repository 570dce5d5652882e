// Package grpc exposes the Health Monitor through the standard gRPC health protocol.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

// Server represents the gRPC health server
type Server struct {
	server       *grpc.Server
	healthServer *health.Server
	port         int
	log          *zap.Logger
}

// NewServer creates a new gRPC server instance
func NewServer(port int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := grpc.NewServer(grpc.ConnectionTimeout(30 * time.Second))
	healthServer := health.NewServer()

	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(s)

	return &Server{
		server:       s,
		healthServer: healthServer,
		port:         port,
		log:          log.Named("grpc"),
	}
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("0.0.0.0:%d", s.port)
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.log.Info("gRPC server starting", zap.String("address", addr))
	go s.Serve(listener)
	return nil
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) {
	if err := s.server.Serve(lis); err != nil {
		s.log.Error("gRPC server failed", zap.Error(err))
	}
}

// UpdateHealth mirrors a report: every service is registered under its own
// name and the overall status under "". Degraded still counts as serving.
func (s *Server) UpdateHealth(report models.HealthReport) {
	for name, h := range report.Services {
		s.healthServer.SetServingStatus(name, servingStatus(h.Status))
	}
	s.healthServer.SetServingStatus("", servingStatus(report.Status))
}

func servingStatus(st models.HealthStatus) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if st == models.StatusDown {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() {
	s.log.Info("Stopping gRPC server")
	s.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.log.Info("gRPC server stopped gracefully")
	case <-time.After(5 * time.Second):
		s.log.Warn("gRPC server forced to stop after timeout")
		s.server.Stop()
	}
}
