package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the bot.
const ServiceName = "chanbot"

// Pinger is checked by the health watcher.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers the health service and reflection. The returned health server
// starts out NOT_SERVING for ServiceName until WatchHealth reports otherwise.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}

// WatchHealth pings p immediately and then every interval, publishing the
// result as the serving status of ServiceName until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, p Pinger, interval time.Duration, logger *slog.Logger) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		st := healthpb.HealthCheckResponse_SERVING
		if err := p.Ping(pctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("store health check failed", "err", err)
		}
		hs.SetServingStatus(ServiceName, st)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
