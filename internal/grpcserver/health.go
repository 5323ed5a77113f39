package grpcserver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName is the health-check service name reported for the booking engine.
	ServiceName = "courtbook.v1.Booking"

	defaultCheckInterval = 10 * time.Second
	defaultCheckTimeout  = 2 * time.Second
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer mirrors store reachability into the standard gRPC health service.
type HealthServer struct {
	health   *health.Server
	pinger   Pinger
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
}

// HealthOption configures a HealthServer.
type HealthOption func(*HealthServer)

// WithCheckInterval sets how often Run refreshes the status.
func WithCheckInterval(interval time.Duration) HealthOption {
	return func(server *HealthServer) {
		if interval > 0 {
			server.interval = interval
		}
	}
}

// WithCheckTimeout bounds a single ping.
func WithCheckTimeout(timeout time.Duration) HealthOption {
	return func(server *HealthServer) {
		if timeout > 0 {
			server.timeout = timeout
		}
	}
}

// NewHealthServer builds a health server. Status starts as NOT_SERVING until the first Refresh.
func NewHealthServer(pinger Pinger, logger *zap.Logger, options ...HealthOption) (*HealthServer, error) {
	if pinger == nil {
		return nil, errors.New("grpcserver: pinger is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &HealthServer{
		health:   health.NewServer(),
		pinger:   pinger,
		logger:   logger,
		interval: defaultCheckInterval,
		timeout:  defaultCheckTimeout,
	}
	for _, option := range options {
		option(server)
	}
	server.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return server, nil
}

// Register attaches the health service to grpcServer.
func (server *HealthServer) Register(grpcServer *grpc.Server) {
	healthpb.RegisterHealthServer(grpcServer, server.health)
}

// Refresh pings the store once and publishes the result.
func (server *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, server.timeout)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := server.pinger.Ping(pingCtx); err != nil {
		server.logger.Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	server.setStatus(status)
	return status
}

// Run refreshes on every tick until ctx is cancelled, then marks the service down.
func (server *HealthServer) Run(ctx context.Context) {
	server.Refresh(ctx)
	ticker := time.NewTicker(server.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			server.health.Shutdown()
			return
		case <-ticker.C:
			server.Refresh(ctx)
		}
	}
}

func (server *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	server.health.SetServingStatus("", status)
	server.health.SetServingStatus(ServiceName, status)
}
