// Package grpcserver exposes the standard gRPC health service, driven by the
// same dependency checks as /readyz.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/md-rashed-zaman/easybook/libs/grpcx"
	"github.com/md-rashed-zaman/easybook/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service key reported alongside the overall "" status.
const ServiceName = "easybook.booking.v1.BookingService"

type Server struct {
	srv      *grpc.Server
	health   *health.Server
	checks   []runtime.ReadyCheck
	logger   *slog.Logger
	interval time.Duration
}

func New(logger *slog.Logger, interval time.Duration, checks ...runtime.ReadyCheck) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	srv := grpc.NewServer(grpcx.ServerOptions()...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{srv: srv, health: hs, checks: checks, logger: logger, interval: interval}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)
	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()
	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

// Refresh runs the checks once and publishes the resulting status.
func (s *Server) Refresh(ctx context.Context) {
	if failures := runtime.RunChecks(ctx, s.checks...); len(failures) > 0 {
		s.logger.Warn("grpc health not serving", "failures", strings.Join(failures, "; "))
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
