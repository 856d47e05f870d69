// Package void parses room command flags and composes the server entrypoint.
package void

import (
	"context"
	"flag"
	"fmt"
	"os"

	entrypoint "github.com/louisbranch/thevoid/internal/platform/cmd"
	"github.com/louisbranch/thevoid/internal/platform/logging"
	server "github.com/louisbranch/thevoid/internal/services/void/app"
)

// Config holds room command configuration.
type Config struct {
	HTTPAddr    string `env:"THEVOID_HTTP_ADDR"    envDefault:":3000"`
	Room        string `env:"THEVOID_ROOM"         envDefault:"the-void"`
	StaticDir   string `env:"THEVOID_STATIC_DIR"`
	Storage     string `env:"THEVOID_STORAGE"      envDefault:"sqlite"`
	SQLitePath  string `env:"THEVOID_SQLITE_PATH"  envDefault:"data/void.db"`
	BboltPath   string `env:"THEVOID_BBOLT_PATH"   envDefault:"data/void.bolt"`
	RedisURL    string `env:"THEVOID_REDIS_URL"    envDefault:"redis://localhost:6379/0"`
	PostgresURL string `env:"THEVOID_POSTGRES_URL" envDefault:"postgres://localhost:5432/thevoid"`
	LogLevel    string `env:"THEVOID_LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"THEVOID_LOG_FORMAT"   envDefault:"json"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.Room, "room", cfg.Room, "room name")
	fs.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "directory of browser client files served at /")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage backend: memory, sqlite, bbolt, redis or postgres")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "sqlite database path")
	fs.StringVar(&cfg.BboltPath, "bbolt-path", cfg.BboltPath, "bbolt database path")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis connection URL")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "postgres connection URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or console")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the room server and serves until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceVoid, logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	options := entrypoint.RunOptions{Logger: &logger}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceVoid, options, func(ctx context.Context) error {
		if err := server.Run(ctx, serverConfig(cfg, logger)); err != nil {
			return fmt.Errorf("serve void: %w", err)
		}
		return nil
	})
}
