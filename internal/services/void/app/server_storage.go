package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/thevoid/internal/services/void/storage"
	voidbbolt "github.com/louisbranch/thevoid/internal/services/void/storage/bbolt"
	"github.com/louisbranch/thevoid/internal/services/void/storage/memory"
	"github.com/louisbranch/thevoid/internal/services/void/storage/postgres"
	voidredis "github.com/louisbranch/thevoid/internal/services/void/storage/redis"
	voidsqlite "github.com/louisbranch/thevoid/internal/services/void/storage/sqlite"
)

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBbolt    = "bbolt"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// StorageConfig selects and locates the durable store for the room.
type StorageConfig struct {
	Backend     string
	SQLitePath  string
	BboltPath   string
	RedisURL    string
	PostgresURL string
}

func openStorage(ctx context.Context, config Config) (storage.KV, error) {
	backend := strings.ToLower(strings.TrimSpace(config.Storage.Backend))
	switch backend {
	case BackendMemory:
		return memory.New(), nil
	case BackendSQLite:
		path := strings.TrimSpace(config.Storage.SQLitePath)
		if err := ensureStorageDir(path); err != nil {
			return nil, err
		}
		store, err := voidsqlite.Open(path, config.RoomName)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case BackendBbolt:
		path := strings.TrimSpace(config.Storage.BboltPath)
		if err := ensureStorageDir(path); err != nil {
			return nil, err
		}
		store, err := voidbbolt.Open(path, config.RoomName)
		if err != nil {
			return nil, fmt.Errorf("open bbolt store: %w", err)
		}
		return store, nil
	case BackendRedis:
		dialCtx, cancel := context.WithTimeout(ctx, config.StorageDialTimeout)
		defer cancel()
		store, err := voidredis.Open(dialCtx, config.Storage.RedisURL, "thevoid:"+config.RoomName)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, nil
	case BackendPostgres:
		dialCtx, cancel := context.WithTimeout(ctx, config.StorageDialTimeout)
		defer cancel()
		store, err := postgres.Open(dialCtx, config.Storage.PostgresURL, config.RoomName)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case "":
		return nil, fmt.Errorf("storage backend is required")
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", config.Storage.Backend)
	}
}

func ensureStorageDir(path string) error {
	if path == "" {
		return fmt.Errorf("storage path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}
