// Package postgres provides a PostgreSQL-backed room record store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/louisbranch/thevoid/internal/services/void/storage"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS room_records (
    room_name TEXT NOT NULL,
    record_key TEXT NOT NULL,
    record_value BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (room_name, record_key)
)`

// Store keeps room records in one PostgreSQL table, partitioned by room name.
type Store struct {
	pool   *pgxpool.Pool
	room   string
	closed atomic.Bool
}

// Open connects a pool to databaseURL and ensures the records table exists.
func Open(ctx context.Context, databaseURL string, room string) (*Store, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, fmt.Errorf("room name is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure room_records table: %w", err)
	}
	return &Store{pool: pool, room: room}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	if !s.closed.Swap(true) {
		s.pool.Close()
	}
	return nil
}

// Get returns the record stored under key for this room.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	key, ok := storage.NormalizeKey(key)
	if !ok {
		return nil, fmt.Errorf("key is required")
	}

	var value []byte
	err := s.pool.QueryRow(
		ctx,
		`SELECT record_value FROM room_records WHERE room_name = $1 AND record_key = $2`,
		s.room,
		key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get room record: %w", err)
	}
	return value, nil
}

// Put overwrites the record stored under key for this room.
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

	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO room_records (room_name, record_key, record_value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (room_name, record_key) DO UPDATE SET
		   record_value = EXCLUDED.record_value,
		   updated_at = EXCLUDED.updated_at`,
		s.room,
		key,
		value,
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
	if s == nil || s.pool == nil {
		return fmt.Errorf("storage is not configured")
	}
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return nil
}
