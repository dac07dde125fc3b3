// Package engine parses engine command flags and starts the game-state server.
package engine

import (
	"context"
	"errors"
	"flag"

	"github.com/louisbranch/torchbearer.quest/internal/engine/app"
	entrypoint "github.com/louisbranch/torchbearer.quest/internal/platform/cmd"
)

// Config holds engine command configuration.
type Config struct {
	Addr          string `env:"TORCHBEARER_ENGINE_ADDR" envDefault:":8084"`
	DatabasePath  string `env:"TORCHBEARER_ENGINE_DB_PATH"`
	TokenSecret   string `env:"TORCHBEARER_ENGINE_TOKEN_SECRET"`
	RedisAddr     string `env:"TORCHBEARER_ENGINE_REDIS_ADDR"`
	RedisPassword string `env:"TORCHBEARER_ENGINE_REDIS_PASSWORD"`
	RedisDB       int    `env:"TORCHBEARER_ENGINE_REDIS_DB"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The engine HTTP listen address")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "The sqlite database path")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "The Redis address for session broadcasts")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.TokenSecret == "" {
		return Config{}, errors.New("TORCHBEARER_ENGINE_TOKEN_SECRET is required")
	}
	return cfg, nil
}

// Run starts the engine service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(context.Context) error {
		return app.Run(ctx, app.Options{
			Addr:          cfg.Addr,
			DatabasePath:  cfg.DatabasePath,
			TokenSecret:   []byte(cfg.TokenSecret),
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
		})
	})
}
