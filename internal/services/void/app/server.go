// Package server hosts The Void over HTTP and WebSocket.
//
// It owns process wiring only: durable storage, the object store and the room
// coordinator are built here and handed to the transport routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/louisbranch/thevoid/internal/platform/timeouts"
	"github.com/louisbranch/thevoid/internal/services/void/objects"
	"github.com/louisbranch/thevoid/internal/services/void/room"
	"github.com/louisbranch/thevoid/internal/services/void/storage"
)

// Config defines the inputs for the room server.
type Config struct {
	HTTPAddr  string
	RoomName  string
	StaticDir string
	Storage   StorageConfig
	Logger    zerolog.Logger

	ReadHeaderTimeout  time.Duration
	ShutdownTimeout    time.Duration
	StorageDialTimeout time.Duration
}

// Server hosts the room HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	logger          zerolog.Logger

	kv    storage.KV
	store *objects.Store
	room  *room.Room

	fatal     chan error
	closeOnce sync.Once
}

// NewServer builds a server with a background context.
func NewServer(config Config) (*Server, error) {
	return NewServerWithContext(context.Background(), config)
}

// NewServerWithContext opens storage, loads the shared objects and builds the
// HTTP routes. ctx bounds startup only.
func NewServerWithContext(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	config.RoomName = strings.TrimSpace(config.RoomName)
	if config.RoomName == "" {
		return nil, errors.New("room name is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.StorageDialTimeout <= 0 {
		config.StorageDialTimeout = timeouts.StorageDial
	}
	logger := config.Logger.With().Str("room", config.RoomName).Logger()

	kv, err := openStorage(ctx, config)
	if err != nil {
		return nil, err
	}

	s := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		logger:          logger,
		kv:              kv,
		fatal:           make(chan error, 1),
	}

	store, err := objects.New(kv, objects.Options{
		Logger:  logger,
		OnFatal: s.reportFatal,
	})
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("init object store: %w", err)
	}
	s.store = store
	if _, err := store.Load(ctx); err != nil {
		s.closeStorage()
		return nil, fmt.Errorf("load objects: %w", err)
	}

	coordinator, err := room.New(config.RoomName, store, logger)
	if err != nil {
		s.closeStorage()
		return nil, fmt.Errorf("init room: %w", err)
	}
	s.room = coordinator

	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(coordinator, store, config.StaticDir, logger),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return s, nil
}

// Run builds a server and serves until ctx is cancelled.
func Run(ctx context.Context, config Config) error {
	server, err := NewServerWithContext(ctx, config)
	if err != nil {
		return fmt.Errorf("init void server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve void: %w", err)
	}
	return nil
}

// ListenAndServe serves until ctx is cancelled or storage becomes unusable.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("void server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	s.logger.Info().Str("addr", s.httpAddr).Msg("void server listening")
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-s.fatal:
		if shutdownErr := s.shutdown(); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("shutdown after storage failure")
		}
		return fmt.Errorf("storage unavailable: %w", err)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close disconnects every session, flushes the object store and releases
// storage. It is safe to call more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.room != nil {
			s.room.Shutdown()
		}
		s.closeStorage()
	})
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	err := s.httpServer.Shutdown(shutdownCtx)
	cancel()
	// Hijacked websocket connections are not tracked by http.Server.
	s.room.Shutdown()
	if err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) closeStorage() {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		if err := s.store.Close(ctx); err != nil {
			s.logger.Error().Err(err).Msg("close object store")
		}
		cancel()
	}
	if s.kv != nil {
		if err := s.kv.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
			s.logger.Error().Err(err).Msg("close storage")
		}
	}
}

func (s *Server) reportFatal(err error) {
	s.logger.Error().Err(err).Msg("storage failed, shutting down")
	select {
	case s.fatal <- err:
	default:
	}
}
