package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/louisbranch/thevoid/internal/services/void/objects"
	"github.com/louisbranch/thevoid/internal/services/void/room"
)

const (
	maxFramePayloadBytes = 16 * 1024
	outboundQueueSize    = 256
)

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("outbound queue full")
)

// snapshotter is the read side of the object store used by /objects.
type snapshotter interface {
	Snapshot() []objects.SharedObject
}

func newHandler(coordinator *room.Room, store snapshotter, staticDir string, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/objects", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(store.Snapshot()); err != nil {
			logger.Error().Err(err).Msg("write objects snapshot")
		}
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, coordinator, logger)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	if dir := strings.TrimSpace(staticDir); dir != "" {
		mux.Handle("/", http.FileServer(http.Dir(dir)))
	} else {
		mux.HandleFunc("/", http.NotFound)
	}
	return mux
}

func handleWSConn(conn *websocket.Conn, coordinator *room.Room, logger zerolog.Logger) {
	conn.MaxPayloadBytes = maxFramePayloadBytes
	peer := newWSPeer(uuid.NewString(), conn, logger)
	go peer.writeLoop()
	defer func() {
		coordinator.Disconnect(peer.ID())
		_ = peer.Close()
		<-peer.done
	}()

	if _, err := coordinator.Connect(peer); err != nil {
		logger.Warn().Err(err).Str("conn_id", peer.ID()).Msg("connect websocket session")
		return
	}

	for {
		var frame []byte
		if err := websocket.Message.Receive(conn, &frame); err != nil {
			if errors.Is(err, websocket.ErrFrameTooLarge) {
				logger.Debug().Str("conn_id", peer.ID()).Msg("dropping oversized frame")
				continue
			}
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Str("conn_id", peer.ID()).Msg("websocket read ended")
			}
			return
		}
		coordinator.Receive(peer.ID(), frame)
	}
}

// wsPeer adapts a websocket connection to room.Conn. Send never blocks:
// frames go to a bounded queue drained by writeLoop.
type wsPeer struct {
	id     string
	conn   *websocket.Conn
	logger zerolog.Logger

	mu     sync.Mutex
	queue  chan []byte
	closed bool
	done   chan struct{}
}

func newWSPeer(id string, conn *websocket.Conn, logger zerolog.Logger) *wsPeer {
	return &wsPeer{
		id:     id,
		conn:   conn,
		logger: logger,
		queue:  make(chan []byte, outboundQueueSize),
		done:   make(chan struct{}),
	}
}

func (p *wsPeer) ID() string {
	return p.id
}

func (p *wsPeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errConnClosed
	}
	select {
	case p.queue <- frame:
		return nil
	default:
		return errQueueFull
	}
}

// Close stops accepting frames. Queued frames are still written before the
// websocket is closed.
func (p *wsPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.queue)
	return nil
}

func (p *wsPeer) writeLoop() {
	defer close(p.done)
	defer func() {
		_ = p.conn.Close()
	}()
	for frame := range p.queue {
		if err := websocket.Message.Send(p.conn, string(frame)); err != nil {
			p.logger.Debug().Err(err).Str("conn_id", p.id).Msg("websocket write failed")
			_ = p.Close()
			return
		}
	}
}
