// Package objects owns the room's shared object list and its durable copy.
//
// The in-memory list is authoritative. Every successful Move schedules a
// whole-list write through a single background persister, so durable state
// converges on the latest list and never regresses to an older one. A crash
// between a Move and the end of its write loses that position; nothing more
// is promised.
package objects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	platformotel "github.com/louisbranch/thevoid/internal/platform/otel"
	"github.com/louisbranch/thevoid/internal/platform/timeouts"
	"github.com/louisbranch/thevoid/internal/services/void/storage"
)

// RecordKey is the storage key holding the serialized object list.
const RecordKey = "objects"

const tracerName = "github.com/louisbranch/thevoid/internal/services/void/objects"

// Options tune a Store.
type Options struct {
	Logger zerolog.Logger
	// OnFatal is called once when a write fails because storage is gone.
	OnFatal func(error)
	// WriteTimeout bounds one durable write. Defaults to timeouts.StorageWrite.
	WriteTimeout time.Duration
	Tracer       trace.Tracer
}

type pendingWrite struct {
	seq     uint64
	payload []byte
}

// Store holds the shared object list.
type Store struct {
	kv           storage.KV
	logger       zerolog.Logger
	onFatal      func(error)
	fatalOnce    sync.Once
	writeTimeout time.Duration
	tracer       trace.Tracer

	mu        sync.Mutex
	objects   []SharedObject
	pending   *pendingWrite
	scheduled uint64
	completed uint64
	progress  chan struct{}
	closed    bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New returns a store persisting through kv and starts its persister.
// Call Load before serving the room and Close when done.
func New(kv storage.KV, opts Options) (*Store, error) {
	if kv == nil {
		return nil, errors.New("storage is required")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = timeouts.StorageWrite
	}
	if opts.Tracer == nil {
		opts.Tracer = platformotel.Tracer(tracerName)
	}
	s := &Store{
		kv:           kv,
		logger:       opts.Logger,
		onFatal:      opts.OnFatal,
		writeTimeout: opts.WriteTimeout,
		tracer:       opts.Tracer,
		objects:      []SharedObject{},
		progress:     make(chan struct{}),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go s.persistLoop()
	return s, nil
}

// Load seeds the list from storage, falling back to DefaultLayout when no
// usable record exists, and returns a copy of the result.
func (s *Store) Load(ctx context.Context) ([]SharedObject, error) {
	if s == nil {
		return nil, errors.New("object store is nil")
	}
	list, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.objects = list
	out := s.snapshotLocked()
	s.mu.Unlock()
	return out, nil
}

func (s *Store) read(ctx context.Context) ([]SharedObject, error) {
	payload, err := s.kv.Get(ctx, RecordKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info().Msg("no persisted objects, seeding default layout")
		return DefaultLayout(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load objects: %w", err)
	}

	var list []SharedObject
	if err := json.Unmarshal(payload, &list); err != nil {
		s.logger.Warn().Err(err).Msg("persisted objects unreadable, seeding default layout")
		return DefaultLayout(), nil
	}
	if list == nil {
		return DefaultLayout(), nil
	}
	s.logger.Info().Int("objects", len(list)).Msg("loaded persisted objects")
	return list, nil
}

// Find returns the object with id.
func (s *Store) Find(id string) (SharedObject, bool) {
	if s == nil {
		return SharedObject{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.objects[i], true
	}
	return SharedObject{}, false
}

// Move sets the coordinates of the object with id and schedules a durable
// write of the whole list. It reports whether the object exists; unknown
// ids change nothing.
func (s *Store) Move(id string, x float64, y float64) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.objects[i].X = x
	s.objects[i].Y = y
	s.scheduleLocked()
	return true
}

// Snapshot returns a copy of the list in order.
func (s *Store) Snapshot() []SharedObject {
	if s == nil {
		return []SharedObject{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Flush waits until every write scheduled before the call has finished or
// been superseded by a finished newer one.
func (s *Store) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	target := s.scheduled
	for s.completed < target {
		progress := s.progress
		s.mu.Unlock()
		select {
		case <-progress:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	s.mu.Unlock()
	return nil
}

// Close writes any pending list and stops the persister. Moves after Close
// still update memory but are no longer persisted. Every call waits for the
// persister, so a Close that timed out can be retried.
func (s *Store) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stop)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush objects: %w", ctx.Err())
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.objects {
		if s.objects[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []SharedObject {
	out := make([]SharedObject, len(s.objects))
	copy(out, s.objects)
	return out
}

func (s *Store) scheduleLocked() {
	if s.closed {
		s.logger.Debug().Msg("object store closed, skipping persist")
		return
	}
	payload, err := json.Marshal(s.objects)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal objects")
		return
	}
	s.scheduled++
	s.pending = &pendingWrite{seq: s.scheduled, payload: payload}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) persistLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.writePending()
		case <-s.stop:
			s.writePending()
			return
		}
	}
}

func (s *Store) writePending() {
	s.mu.Lock()
	next := s.pending
	s.pending = nil
	s.mu.Unlock()
	if next == nil {
		return
	}

	if err := s.write(next); err != nil {
		s.logger.Error().Err(err).Uint64("seq", next.seq).Msg("persist objects")
		if errors.Is(err, storage.ErrClosed) && s.onFatal != nil {
			s.fatalOnce.Do(func() { s.onFatal(err) })
		}
	}

	s.mu.Lock()
	if next.seq > s.completed {
		s.completed = next.seq
	}
	close(s.progress)
	s.progress = make(chan struct{})
	s.mu.Unlock()
}

func (s *Store) write(next *pendingWrite) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "objects.persist", trace.WithAttributes(
		attribute.Int64("objects.seq", int64(next.seq)),
		attribute.Int("objects.bytes", len(next.payload)),
	))
	defer span.End()

	if err := s.kv.Put(ctx, RecordKey, next.payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}
