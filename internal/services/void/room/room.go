// Package room coordinates the live sessions of one shared room.
//
// A Room assigns each connection a client id, sends it the current state,
// relays its events to the right peers and announces departures. All handlers
// run under one mutex, so id assignment, session registration and object
// mutation never interleave. Sends go through Conn, which must not block on
// the network; a Send error drops only that recipient.
package room

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/louisbranch/thevoid/internal/services/void/objects"
	"github.com/louisbranch/thevoid/internal/services/void/protocol"
)

// ErrClosed is returned by Connect after Shutdown.
var ErrClosed = errors.New("room is closed")

// Conn is one transport connection as seen by the room.
type Conn interface {
	// ID identifies the connection for the lifetime of the transport.
	ID() string
	// Send queues one frame for delivery.
	Send(frame []byte) error
	// Close tears down the transport connection.
	Close() error
}

// ObjectStore is the shared object state the room reads and drags.
type ObjectStore interface {
	Snapshot() []objects.SharedObject
	Move(id string, x float64, y float64) bool
}

type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosed
)

type session struct {
	conn     Conn
	clientID int64
	state    sessionState
}

// Room is the coordinator for one named room.
type Room struct {
	store  ObjectStore
	logger zerolog.Logger

	mu           sync.Mutex
	nextClientID int64
	sessions     map[string]*session
	failed       []*session
	closed       bool
}

// New returns an empty room backed by store.
func New(name string, store ObjectStore, logger zerolog.Logger) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("room name is required")
	}
	if store == nil {
		return nil, errors.New("object store is required")
	}
	return &Room{
		store:    store,
		logger:   logger.With().Str("room", name).Logger(),
		sessions: make(map[string]*session),
	}, nil
}

// Count returns the number of live sessions.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Connect registers conn, sends it an init frame and broadcasts the new
// presence count to every session. The returned client id is never reused,
// even when Connect fails after assigning it.
func (r *Room) Connect(conn Conn) (int64, error) {
	if conn == nil {
		return 0, errors.New("connection is required")
	}
	connID := conn.ID()
	if strings.TrimSpace(connID) == "" {
		return 0, errors.New("connection id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		_ = conn.Close()
		return 0, ErrClosed
	}
	if _, exists := r.sessions[connID]; exists {
		return 0, fmt.Errorf("connection %s is already registered", connID)
	}

	r.nextClientID++
	s := &session{conn: conn, clientID: r.nextClientID, state: stateConnecting}
	r.sessions[connID] = s

	init := protocol.NewInit(s.clientID, r.store.Snapshot(), len(r.sessions))
	frame, err := protocol.Encode(init)
	if err == nil {
		err = conn.Send(frame)
	}
	if err != nil {
		delete(r.sessions, connID)
		s.state = stateClosed
		_ = conn.Close()
		return s.clientID, fmt.Errorf("send init: %w", err)
	}
	s.state = stateActive

	r.logger.Info().
		Int64("client_id", s.clientID).
		Str("conn_id", connID).
		Int("presence", len(r.sessions)).
		Msg("client connected")

	r.broadcastLocked(protocol.NewPresence(len(r.sessions)), nil)
	r.settleLocked()
	return s.clientID, nil
}

// Receive handles one inbound frame from the connection connID. Frames from
// unknown or closed sessions and frames that fail to decode are dropped.
func (r *Room) Receive(connID string, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok || s.state != stateActive {
		r.logger.Debug().Str("conn_id", connID).Msg("dropping frame from inactive connection")
		return
	}

	switch ev := protocol.Decode(frame).(type) {
	case protocol.Cursor:
		r.broadcastLocked(protocol.NewPoint(protocol.TypeCursor, s.clientID, ev.X, ev.Y), s)
	case protocol.Click:
		r.broadcastLocked(protocol.NewPoint(protocol.TypeClick, s.clientID, ev.X, ev.Y), nil)
	case protocol.Trail:
		r.broadcastLocked(protocol.NewPoint(protocol.TypeTrail, s.clientID, ev.X, ev.Y), s)
	case protocol.Drag:
		if !r.store.Move(ev.ObjectID, ev.X, ev.Y) {
			r.logger.Debug().Int64("client_id", s.clientID).Str("object_id", ev.ObjectID).Msg("drag on unknown object")
		}
		// Peers get the echo even for unknown ids.
		r.broadcastLocked(protocol.NewDragRelay(s.clientID, ev), s)
	case protocol.Unrecognized:
		r.logger.Debug().
			Int64("client_id", s.clientID).
			Str("type", ev.Type).
			Str("reason", ev.Reason).
			Msg("dropping unrecognized frame")
		return
	}
	r.settleLocked()
}

// Disconnect removes the session for connID and announces the departure to
// the remaining sessions. Unknown ids are ignored.
func (r *Room) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return
	}
	r.removeLocked(s)
	r.logger.Info().
		Int64("client_id", s.clientID).
		Str("conn_id", connID).
		Int("presence", len(r.sessions)).
		Msg("client disconnected")
	r.announceDepartureLocked(s)
	r.settleLocked()
}

// Shutdown closes every session without announcing departures. Later
// Connect calls fail with ErrClosed.
func (r *Room) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		r.removeLocked(s)
		sessions = append(sessions, s)
	}
	r.failed = nil
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.conn.Close()
	}
}

func (r *Room) removeLocked(s *session) {
	delete(r.sessions, s.conn.ID())
	s.state = stateClosed
}

func (r *Room) announceDepartureLocked(s *session) {
	r.broadcastLocked(protocol.NewPresence(len(r.sessions)), nil)
	r.broadcastLocked(protocol.NewCursorLeave(s.clientID), nil)
}

// broadcastLocked sends frame to every active session except exclude.
// Failed recipients are queued for settleLocked.
func (r *Room) broadcastLocked(frame any, exclude *session) {
	payload, err := protocol.Encode(frame)
	if err != nil {
		r.logger.Error().Err(err).Msg("encode frame")
		return
	}
	for _, s := range r.sessions {
		if s == exclude || s.state != stateActive {
			continue
		}
		if err := s.conn.Send(payload); err != nil {
			r.logger.Warn().Err(err).Int64("client_id", s.clientID).Msg("send failed, dropping session")
			s.state = stateClosed
			r.failed = append(r.failed, s)
		}
	}
}

// settleLocked drops sessions whose sends failed and announces each
// departure, repeating until a round of announcements fails nowhere.
func (r *Room) settleLocked() {
	for len(r.failed) > 0 {
		failed := r.failed
		r.failed = nil
		for _, s := range failed {
			if _, live := r.sessions[s.conn.ID()]; !live {
				continue
			}
			delete(r.sessions, s.conn.ID())
			_ = s.conn.Close()
			r.logger.Info().
				Int64("client_id", s.clientID).
				Int("presence", len(r.sessions)).
				Msg("client dropped")
			r.announceDepartureLocked(s)
		}
	}
}
