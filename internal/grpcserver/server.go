package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/loocate/loocate/internal/monitoring"
	"github.com/loocate/loocate/internal/sentry"
	"github.com/loocate/loocate/internal/telemetry"
)

// ServiceName is the name the health service reports the API under.
const ServiceName = "loocate.v1.Screens"

// Server is the gRPC side of the service. It only carries the standard
// health service, driven by the same checks as /health.
type Server struct {
	*grpc.Server
	health *health.Server
}

func New(opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(sentry.UnaryServerInterceptor())}, opts...)
	server := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{Server: server, health: hs}
}

// SetServing updates both the overall and the API service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// WatchHealth mirrors checker into the health service every interval
// until ctx is done.
func (s *Server) WatchHealth(ctx context.Context, checker *monitoring.HealthChecker, interval time.Duration) {
	update := func() {
		serving := checker.GetHealth(ctx).Status != monitoring.HealthStatusUnhealthy
		s.SetServing(serving)
	}
	update()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				update()
			}
		}
	}()
}

// Shutdown reports NOT_SERVING to watchers and drains in-flight calls.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"service":   "grpc",
			"operation": "shutdown",
		}).Warn("gRPC graceful stop timed out, forcing stop")
		s.Stop()
	}
}
