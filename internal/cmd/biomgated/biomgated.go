// Package biomgated parses daemon flags and launches the service.
package biomgated

import (
	"context"
	"flag"

	entrypoint "github.com/louisbranch/biomgate/internal/platform/cmd"
	server "github.com/louisbranch/biomgate/internal/services/biometric/app"
)

// Config holds biomgated command configuration.
type Config struct {
	Port int `env:"BIOMGATE_PORT" envDefault:"8099"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The daemon HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the biometric daemon.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBiomgated, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
