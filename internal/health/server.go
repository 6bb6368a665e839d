// Package health serves the standard gRPC health protocol for the relay.
// The overall service reports SERVING once the relay is up; the worker
// service tracks the worker link.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceWorker is the health service name that follows worker connectivity
const ServiceWorker = "gesture.worker"

// Server wraps a gRPC server exposing grpc.health.v1.Health
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *slog.Logger
}

// NewServer creates a health server with the worker reported as not serving
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceWorker, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpcServer: gs, health: hs, logger: logger}
}

// SetWorkerConnected updates the worker service status
func (s *Server) SetWorkerConnected(connected bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceWorker, status)
}

// Listen opens a TCP listener on addr
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	listenConfig := net.ListenConfig{}
	lis, err := listenConfig.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return lis, nil
}

// Serve blocks serving health checks on lis
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Starting gRPC health server", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server, forcing it
// after timeout
func (s *Server) Stop(timeout time.Duration) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("gRPC health server stopped gracefully")
	case <-time.After(timeout):
		s.logger.Warn("Graceful shutdown timeout, forcing stop")
		s.grpcServer.Stop()
		<-done
	}
}
