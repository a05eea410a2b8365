package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/lexiqai/speech-relay/internal/observability"
)

// ServiceName is the overall service name reported by the health service
const ServiceName = "speech-relay"

// HealthServer publishes dependency readiness over the standard gRPC
// health protocol. The empty service name reflects overall readiness;
// each check is also reported as "speech-relay.<check>".
type HealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   []observability.Check
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewHealthServer registers health and reflection services
func NewHealthServer(interval time.Duration, checks ...observability.Check) *HealthServer {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 5 * time.Second,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	h := &HealthServer{
		server:   server,
		health:   hs,
		checks:   checks,
		interval: interval,
		logger:   observability.WithComponent("grpc_health"),
	}

	// Not serving until the first probe completes
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, c := range checks {
		h.health.SetServingStatus(checkService(c.Name), healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return h
}

// Refresh runs every check once and publishes the results
func (h *HealthServer) Refresh(ctx context.Context) bool {
	deps, healthy := observability.RunChecks(ctx, h.checks)

	for name, dep := range deps {
		status := healthpb.HealthCheckResponse_SERVING
		if dep.Status != "healthy" {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		h.health.SetServingStatus(checkService(name), status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", overall)
	h.health.SetServingStatus(ServiceName, overall)

	return healthy
}

// Watch refreshes health every interval until ctx is done
func (h *HealthServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.refreshWithTimeout(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.refreshWithTimeout(ctx)
		}
	}
}

func (h *HealthServer) refreshWithTimeout(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if !h.Refresh(checkCtx) {
		h.logger.Warn().Msg("Dependency check failed, reporting NOT_SERVING")
	}
}

// Serve accepts connections on lis until Shutdown
func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC health server")
	if err := h.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc server error: %w", err)
	}
	return nil
}

// Shutdown marks everything NOT_SERVING and stops gracefully
func (h *HealthServer) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true

	h.health.Shutdown()
	h.server.GracefulStop()
	h.logger.Info().Msg("gRPC health server stopped")
}

func checkService(name string) string {
	return ServiceName + "." + name
}
