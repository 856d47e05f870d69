package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"

	"github.com/louisbranch/thevoid/internal/services/void/objects"
	"github.com/louisbranch/thevoid/internal/services/void/room"
	"github.com/louisbranch/thevoid/internal/services/void/storage/memory"
)

type testRoom struct {
	srv   *httptest.Server
	room  *room.Room
	store *objects.Store
}

func newTestHandler(t *testing.T, staticDir string) (http.Handler, *room.Room, *objects.Store) {
	t.Helper()
	store, err := objects.New(memory.New(), objects.Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new object store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("load objects: %v", err)
	}
	coordinator, err := room.New("the-void", store, zerolog.Nop())
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	t.Cleanup(coordinator.Shutdown)
	return newHandler(coordinator, store, staticDir, zerolog.Nop()), coordinator, store
}

func newTestRoom(t *testing.T) testRoom {
	t.Helper()
	handler, coordinator, store := newTestHandler(t, "")
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return testRoom{srv: srv, room: coordinator, store: store}
}

func serveRequest(handler http.Handler, method string, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func dialWSWithServerURL(httpURL string, path string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path
	return websocket.Dial(wsURL, "", httpURL)
}

func dialRoom(t *testing.T, tr testRoom) *websocket.Conn {
	t.Helper()
	conn, err := dialWSWithServerURL(tr.srv.URL, "/ws")
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// dialJoined dials and consumes the init and presence frames.
func dialJoined(t *testing.T, tr testRoom) (*websocket.Conn, map[string]any) {
	t.Helper()
	conn := dialRoom(t, tr)
	init := readFrame(t, conn)
	if init["type"] != "init" {
		t.Fatalf("first frame = %v, want init", init)
	}
	if frame := readFrame(t, conn); frame["type"] != "presence" {
		t.Fatalf("second frame = %v, want presence", frame)
	}
	return conn, init
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := websocket.Message.Send(conn, frame); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var raw string
	if err := websocket.Message.Receive(conn, &raw); err != nil {
		t.Fatalf("receive server frame: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decode server frame %q: %v", raw, err)
	}
	return got
}

func waitForCount(t *testing.T, r *room.Room, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Count() = %d, want %d", r.Count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketJoinReceivesInitAndPresence(t *testing.T) {
	tr := newTestRoom(t)

	a, init := dialJoined(t, tr)
	if init["clientId"] != float64(1) || init["presenceCount"] != float64(1) {
		t.Fatalf("init = %v, want clientId 1 presenceCount 1", init)
	}
	list, ok := init["objects"].([]any)
	if !ok || len(list) != 8 {
		t.Fatalf("init objects = %v, want 8 objects", init["objects"])
	}

	_, second := dialJoined(t, tr)
	if second["clientId"] != float64(2) || second["presenceCount"] != float64(2) {
		t.Fatalf("second init = %v, want clientId 2 presenceCount 2", second)
	}
	presence := readFrame(t, a)
	if presence["type"] != "presence" || presence["count"] != float64(2) {
		t.Fatalf("peer frame = %v, want presence count 2", presence)
	}
}

func TestWebSocketCursorRelayExcludesSender(t *testing.T) {
	tr := newTestRoom(t)
	a, _ := dialJoined(t, tr)
	b, _ := dialJoined(t, tr)
	readFrame(t, a) // presence for b

	writeFrame(t, a, `{"type":"cursor","x":0.4,"y":0.6}`)
	got := readFrame(t, b)
	if got["type"] != "cursor" || got["clientId"] != float64(1) || got["x"] != 0.4 || got["y"] != 0.6 {
		t.Fatalf("relay = %v, want cursor from client 1", got)
	}

	// The sender sees its own click but never its cursor.
	writeFrame(t, a, `{"type":"click","x":0.1,"y":0.1}`)
	if got := readFrame(t, a); got["type"] != "click" {
		t.Fatalf("sender frame = %v, want click", got)
	}
	if got := readFrame(t, b); got["type"] != "click" {
		t.Fatalf("peer frame = %v, want click", got)
	}
}

func TestWebSocketDragUpdatesObjectsEndpoint(t *testing.T) {
	tr := newTestRoom(t)
	a, _ := dialJoined(t, tr)
	b, _ := dialJoined(t, tr)
	readFrame(t, a)

	writeFrame(t, a, `{"type":"drag","objectId":"obj1","x":0.9,"y":0.1}`)
	got := readFrame(t, b)
	want := map[string]any{"type": "drag", "clientId": float64(1), "objectId": "obj1", "x": 0.9, "y": 0.1}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("drag relay = %v, want %v", got, want)
		}
	}

	resp, err := http.Get(tr.srv.URL + "/objects")
	if err != nil {
		t.Fatalf("get objects: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q, want application/json", ct)
	}
	var list []objects.SharedObject
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode objects: %v", err)
	}
	if list[0].ID != "obj1" || list[0].X != 0.9 || list[0].Y != 0.1 {
		t.Fatalf("objects[0] = %+v, want obj1 at 0.9/0.1", list[0])
	}
}

func TestWebSocketDisconnectAnnouncesCursorLeave(t *testing.T) {
	tr := newTestRoom(t)
	a, _ := dialJoined(t, tr)
	b, _ := dialJoined(t, tr)
	readFrame(t, a)

	if err := b.Close(); err != nil {
		t.Fatalf("close websocket: %v", err)
	}

	presence := readFrame(t, a)
	if presence["type"] != "presence" || presence["count"] != float64(1) {
		t.Fatalf("frame = %v, want presence count 1", presence)
	}
	leave := readFrame(t, a)
	if leave["type"] != "cursor-leave" || leave["clientId"] != float64(2) {
		t.Fatalf("frame = %v, want cursor-leave for client 2", leave)
	}
	waitForCount(t, tr.room, 1)

	_, init := dialJoined(t, tr)
	if init["clientId"] != float64(3) {
		t.Fatalf("reconnect clientId = %v, want 3", init["clientId"])
	}
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	tr := newTestRoom(t)
	a, _ := dialJoined(t, tr)
	b, _ := dialJoined(t, tr)
	readFrame(t, a)

	writeFrame(t, a, `{not json`)
	writeFrame(t, a, `{"type":"wave"}`)
	writeFrame(t, a, strings.Repeat("x", maxFramePayloadBytes+1))
	writeFrame(t, a, `{"type":"trail","x":0.2,"y":0.3}`)

	got := readFrame(t, b)
	if got["type"] != "trail" || got["clientId"] != float64(1) {
		t.Fatalf("frame = %v, want trail from client 1", got)
	}
	if tr.room.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", tr.room.Count())
	}
}

func TestWebSocketShutdownClosesConnections(t *testing.T) {
	tr := newTestRoom(t)
	a, _ := dialJoined(t, tr)

	tr.room.Shutdown()

	_ = a.SetDeadline(time.Now().Add(2 * time.Second))
	var raw string
	if err := websocket.Message.Receive(a, &raw); err == nil {
		t.Fatalf("received %q after shutdown, want closed connection", raw)
	}
}

func TestUpEndpoint(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")
	rr := serveRequest(handler, http.MethodGet, "/up")

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if strings.TrimSpace(rr.Body.String()) != "OK" {
		t.Fatalf("body = %q, want OK", rr.Body.String())
	}
}

func TestWSEndpointRejectsNonGet(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")
	rr := serveRequest(handler, http.MethodPost, "/ws")

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
	if got := rr.Header().Get("Allow"); got != http.MethodGet {
		t.Fatalf("Allow = %q, want GET", got)
	}
}

func TestObjectsEndpointRejectsWrites(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")
	rr := serveRequest(handler, http.MethodPut, "/objects")

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestRootWithoutStaticDirIsNotFound(t *testing.T) {
	handler, _, _ := newTestHandler(t, "")
	rr := serveRequest(handler, http.MethodGet, "/")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRootServesStaticDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<canvas></canvas>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	handler, _, _ := newTestHandler(t, dir)
	rr := serveRequest(handler, http.MethodGet, "/")

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "<canvas>") {
		t.Fatalf("body = %q, want index.html", rr.Body.String())
	}
}

func TestWSPeerQueueBounds(t *testing.T) {
	peer := newWSPeer("peer", nil, zerolog.Nop())
	for i := 0; i < outboundQueueSize; i++ {
		if err := peer.Send([]byte("{}")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := peer.Send([]byte("{}")); !errors.Is(err, errQueueFull) {
		t.Fatalf("send on full queue = %v, want %v", err, errQueueFull)
	}

	if err := peer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := peer.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := peer.Send([]byte("{}")); !errors.Is(err, errConnClosed) {
		t.Fatalf("send after close = %v, want %v", err, errConnClosed)
	}
}
