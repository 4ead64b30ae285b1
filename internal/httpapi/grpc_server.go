package httpapi

import (
	"context"
	"net"
	"time"

	"crewgate.org/internal/obs"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const grpcServiceName = "crewgate-api"

// GRPCServer exposes the standard gRPC health service backed by the same
// readiness check as /readyz. Load balancers that speak gRPC probe this
// instead of HTTP.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	ready  Pinger
	done   chan struct{}
}

// NewGRPCServer builds the health-only gRPC server.
func NewGRPCServer(ready Pinger) *GRPCServer {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{
		srv:    srv,
		health: hs,
		ready:  ready,
		done:   make(chan struct{}),
	}
}

// Serve listens on addr and re-evaluates readiness every interval until
// GracefulStop is called.
func (g *GRPCServer) Serve(addr string, interval time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go g.watch(interval)
	return g.srv.Serve(lis)
}

func (g *GRPCServer) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	g.evaluate()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.evaluate()
		}
	}
}

func (g *GRPCServer) evaluate() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if g.ready != nil {
		if err := g.ready.Ping(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			obs.Logger().WithError(err).Warn("grpc health check failed")
		}
	}
	obs.SetReady(status == healthpb.HealthCheckResponse_SERVING)
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(grpcServiceName, status)
}

// GracefulStop drains in-flight RPCs and stops the readiness watcher.
func (g *GRPCServer) GracefulStop() {
	close(g.done)
	g.health.Shutdown()
	g.srv.GracefulStop()
}
