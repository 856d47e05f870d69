package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func memoryConfig() Config {
	return Config{
		HTTPAddr: "127.0.0.1:0",
		RoomName: "the-void",
		Storage:  StorageConfig{Backend: BackendMemory},
		Logger:   zerolog.Nop(),
	}
}

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	config := memoryConfig()
	config.HTTPAddr = " "
	if _, err := NewServer(config); err == nil {
		t.Fatal("expected error for empty HTTP address")
	}
}

func TestNewServerRequiresRoomName(t *testing.T) {
	config := memoryConfig()
	config.RoomName = ""
	if _, err := NewServer(config); err == nil {
		t.Fatal("expected error for empty room name")
	}
}

func TestNewServerRejectsUnknownBackend(t *testing.T) {
	config := memoryConfig()
	config.Storage.Backend = "etcd"
	_, err := NewServer(config)
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "etcd") {
		t.Fatalf("error = %q, want backend name", err)
	}
}

func TestNewServerRequiresBackend(t *testing.T) {
	config := memoryConfig()
	config.Storage.Backend = ""
	if _, err := NewServer(config); err == nil {
		t.Fatal("expected error for empty backend")
	}
}

func TestNewServerRequiresContext(t *testing.T) {
	if _, err := NewServerWithContext(nilContext(), memoryConfig()); err == nil {
		t.Fatal("expected error for nil context")
	}
}

func TestListenAndServeNilServer(t *testing.T) {
	var s *Server
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewServer(memoryConfig())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancel")
	}
}

func TestListenAndServeStopsWhenStorageCloses(t *testing.T) {
	server, err := NewServer(memoryConfig())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(context.Background())
	}()

	if err := server.kv.Close(); err != nil {
		t.Fatalf("close storage: %v", err)
	}
	if !server.store.Move("obj1", 0.5, 0.5) {
		t.Fatal("expected obj1 to exist")
	}

	select {
	case err := <-serveErr:
		if err == nil || !strings.Contains(err.Error(), "storage unavailable") {
			t.Fatalf("serve error = %v, want storage unavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after storage closed")
	}
}

func TestServerCloseIsIdempotent(t *testing.T) {
	server, err := NewServer(memoryConfig())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	server.Close()
	server.Close()

	var nilServer *Server
	nilServer.Close()
}

func TestSQLiteBackendPersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "void.db")
	config := memoryConfig()
	config.Storage = StorageConfig{Backend: BackendSQLite, SQLitePath: path}

	first, err := NewServer(config)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if !first.store.Move("obj3", 0.11, 0.22) {
		t.Fatal("expected obj3 to exist")
	}
	first.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat sqlite file: %v", err)
	}

	second, err := NewServer(config)
	if err != nil {
		t.Fatalf("reopen server: %v", err)
	}
	defer second.Close()
	obj, ok := second.store.Find("obj3")
	if !ok || obj.X != 0.11 || obj.Y != 0.22 {
		t.Fatalf("Find(obj3) = %+v, %v; want x=0.11 y=0.22", obj, ok)
	}
}

func TestSQLiteBackendScopesRecordsByRoom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "void.db")
	lobby := memoryConfig()
	lobby.RoomName = "lobby"
	lobby.Storage = StorageConfig{Backend: BackendSQLite, SQLitePath: path}

	first, err := NewServer(lobby)
	if err != nil {
		t.Fatalf("new lobby server: %v", err)
	}
	first.store.Move("obj1", 0.9, 0.9)
	first.Close()

	other := lobby
	other.RoomName = "the-void"
	second, err := NewServer(other)
	if err != nil {
		t.Fatalf("new second server: %v", err)
	}
	defer second.Close()
	obj, ok := second.store.Find("obj1")
	if !ok || obj.X != 0.2 || obj.Y != 0.3 {
		t.Fatalf("Find(obj1) = %+v, %v; want default 0.2/0.3", obj, ok)
	}
}

func TestBboltBackendPersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "void.bolt")
	config := memoryConfig()
	config.Storage = StorageConfig{Backend: BackendBbolt, BboltPath: path}

	first, err := NewServer(config)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	first.store.Move("obj8", 0.5, 0.6)
	first.Close()

	second, err := NewServer(config)
	if err != nil {
		t.Fatalf("reopen server: %v", err)
	}
	defer second.Close()

	rr := serveRequest(second.httpServer.Handler, http.MethodGet, "/objects")
	var list []struct {
		ID string  `json:"id"`
		X  float64 `json:"x"`
		Y  float64 `json:"y"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode objects: %v", err)
	}
	last := list[len(list)-1]
	if last.ID != "obj8" || last.X != 0.5 || last.Y != 0.6 {
		t.Fatalf("objects[last] = %+v, want obj8 at 0.5/0.6", last)
	}
}

func TestFileBackendsRequirePath(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendBbolt} {
		config := memoryConfig()
		config.Storage = StorageConfig{Backend: backend}
		if _, err := NewServer(config); err == nil {
			t.Fatalf("%s: expected error for empty path", backend)
		}
	}
}

func TestRunReturnsInitError(t *testing.T) {
	config := memoryConfig()
	config.HTTPAddr = ""
	err := Run(context.Background(), config)
	if err == nil || !strings.Contains(err.Error(), "init void server") {
		t.Fatalf("Run error = %v, want init failure", err)
	}
}

func nilContext() context.Context {
	return nil
}
