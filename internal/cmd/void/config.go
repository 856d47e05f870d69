package void

import (
	"github.com/rs/zerolog"

	server "github.com/louisbranch/thevoid/internal/services/void/app"
)

func serverConfig(cfg Config, logger zerolog.Logger) server.Config {
	return server.Config{
		HTTPAddr:  cfg.HTTPAddr,
		RoomName:  cfg.Room,
		StaticDir: cfg.StaticDir,
		Storage: server.StorageConfig{
			Backend:     cfg.Storage,
			SQLitePath:  cfg.SQLitePath,
			BboltPath:   cfg.BboltPath,
			RedisURL:    cfg.RedisURL,
			PostgresURL: cfg.PostgresURL,
		},
		Logger: logger,
	}
}
