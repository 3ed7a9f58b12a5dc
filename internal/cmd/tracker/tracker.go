// Package tracker parses tracker command flags and launches the tracker runtime.
package tracker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/pharmovia/incentives/internal/platform/cmd"
	trackerapp "github.com/pharmovia/incentives/internal/services/tracker/app"
)

// Config holds tracker command configuration.
type Config struct {
	Port         int           `env:"PHARMOVIA_TRACKER_PORT" envDefault:"8092"`
	DBPath       string        `env:"PHARMOVIA_TRACKER_DB_PATH" envDefault:"data/tracker.db"`
	PollInterval time.Duration `env:"PHARMOVIA_TRACKER_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"PHARMOVIA_TRACKER_BATCH_SIZE" envDefault:"25"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The tracker health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The tracker SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Sale event feed poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum sale events drained per poll")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the tracker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTracker, func(context.Context) error {
		return trackerapp.Run(ctx, trackerapp.RuntimeConfig{
			Port:         cfg.Port,
			DBPath:       cfg.DBPath,
			PollInterval: cfg.PollInterval,
			BatchSize:    cfg.BatchSize,
		})
	})
}
