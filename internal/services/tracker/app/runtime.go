package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pharmovia/incentives/internal/platform/timeouts"
	"github.com/pharmovia/incentives/internal/services/tracker/domain"
	trackersqlite "github.com/pharmovia/incentives/internal/services/tracker/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls tracker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port         int
	DBPath       string
	PollInterval time.Duration
	BatchSize    int
}

const (
	defaultTrackerPort = 8092
	defaultTrackerDB   = "data/tracker.db"
)

// Run starts tracker runtime dependencies and the sale processing loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultTrackerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultTrackerDB
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create tracker storage dir: %w", err)
		}
	}

	trackerStore, err := trackersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open tracker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := trackerStore.Close(); closeErr != nil {
			log.Printf("close tracker sqlite store: %v", closeErr)
		}
	}()

	service := domain.NewService(trackerStore, log.Printf)
	loop := NewLoop(trackerStore, trackerStore, service, Config{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	}, nil)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on tracker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("tracker.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(timeouts.Shutdown):
			grpcServer.Stop()
		}
		<-serveErr
	}()

	log.Printf("tracker server listening at %v", listener.Addr())
	return loop.Run(ctx)
}
