package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rollcall.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// HealthServer exposes readiness through the standard grpc.health.v1 service,
// both for the empty service name and for serviceName.
type HealthServer struct {
	srv       *health.Server
	readiness readinessChecker
	timeout   time.Duration
}

func NewHealthServer(r readinessChecker) *HealthServer {
	return &HealthServer{
		srv:       health.NewServer(),
		readiness: r,
		timeout:   2 * time.Second,
	}
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Refresh runs the readiness probe once and publishes the outcome.
func (h *HealthServer) Refresh(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	ok := true
	if err := h.readiness.Check(ctx); err != nil {
		obs.Logger().WarnContext(ctx, "readiness check failed", "error", err.Error())
		status = healthpb.HealthCheckResponse_NOT_SERVING
		ok = false
	}
	obs.SetReady(ok)
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
	return ok
}

// Run refreshes readiness every interval until ctx is done, then marks the
// service as shutting down.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	h.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
