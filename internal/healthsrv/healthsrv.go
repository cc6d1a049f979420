// Package healthsrv exposes the standard gRPC health service for orchestrators
// and load balancers that probe over gRPC.
package healthsrv

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "dynamo.Gateway"

// Probe checks whether the gateway can serve chat traffic.
type Probe func(ctx context.Context) error

// Server is a gRPC server carrying only the health service.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	probe    Probe
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a health server. The probe runs every interval.
func New(probe Probe, interval time.Duration, logger *slog.Logger) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{
		grpc:     gs,
		health:   hs,
		probe:    probe,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Check runs the probe once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.probe != nil {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.probe(ctx); err != nil {
			s.logger.Warn("Health probe failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.set(status)
	return status
}

// Run probes until ctx is done, then marks the service as not serving.
func (s *Server) Run(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop drains in-flight RPCs and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
