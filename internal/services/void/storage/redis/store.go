// Package redis provides a Redis-backed room record store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/thevoid/internal/services/void/storage"
)

// Store keeps room records as plain Redis string values under a key prefix.
type Store struct {
	client *goredis.Client
	prefix string
}

// Open connects to the Redis server at url and checks it answers a ping.
// Keys are namespaced as "<prefix>:<key>".
func Open(ctx context.Context, url string, prefix string) (*Store, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, prefix), nil
}

// New wraps an existing client.
func New(client *goredis.Client, prefix string) *Store {
	return &Store{client: client, prefix: strings.Trim(strings.TrimSpace(prefix), ":")}
}

// Close closes the Redis client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	key, ok := storage.NormalizeKey(key)
	if !ok {
		return nil, fmt.Errorf("key is required")
	}

	value, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get room record: %w", classify(err))
	}
	return value, nil
}

// Put overwrites the record stored under key without expiry.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.client == nil {
		return fmt.Errorf("storage is not configured")
	}
	key, ok := storage.NormalizeKey(key)
	if !ok {
		return fmt.Errorf("key is required")
	}

	if err := s.client.Set(ctx, s.recordKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("put room record: %w", classify(err))
	}
	return nil
}

func (s *Store) recordKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func classify(err error) error {
	if errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("%w: %v", storage.ErrClosed, err)
	}
	return err
}
