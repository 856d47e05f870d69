// Package sqlite provides a SQLite-backed room record store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	sqlitemigrate "github.com/louisbranch/thevoid/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/thevoid/internal/services/void/storage"
	"github.com/louisbranch/thevoid/internal/services/void/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists the records of one room in SQLite. Rooms sharing a
// database file are kept apart by room_name.
type Store struct {
	sqlDB  *sql.DB
	room   string
	closed atomic.Bool
}

// Open opens a SQLite record store for room and applies embedded migrations.
func Open(path string, room string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, fmt.Errorf("room name is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, room: room}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	if s.closed.Swap(true) {
		return nil
	}
	return s.sqlDB.Close()
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	key, ok := storage.NormalizeKey(key)
	if !ok {
		return nil, fmt.Errorf("key is required")
	}

	var value []byte
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT record_value FROM room_records WHERE room_name = ? AND record_key = ?`,
		s.room,
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get room record: %w", err)
	}
	return value, nil
}

// Put overwrites the record stored under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	key, ok := storage.NormalizeKey(key)
	if !ok {
		return fmt.Errorf("key is required")
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO room_records (room_name, record_key, record_value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(room_name, record_key) DO UPDATE SET
		   record_value = excluded.record_value,
		   updated_at = excluded.updated_at`,
		s.room,
		key,
		value,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put room record: %w", err)
	}
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return nil
}
