package handlers_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/stretchr/testify/assert"

	"github.com/scrypster/memvault/internal/engine"
	"github.com/scrypster/memvault/web/handlers"
)

func newTestHub(t *testing.T) *handlers.WebSocketHub {
	t.Helper()
	hub := handlers.NewWebSocketHub(bolt.New(bolt.NewJSONHandler(io.Discard)), []string{"http://localhost:6363"})
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestWebSocketHub_RejectsForeignOrigin(t *testing.T) {
	hub := handlers.NewWebSocketHub(bolt.New(bolt.NewJSONHandler(io.Discard)), nil)
	defer hub.Stop()

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req = req.WithContext(handlers.WithUser(req.Context(), "alice"))

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebSocketHub_RequiresUser(t *testing.T) {
	hub := handlers.NewWebSocketHub(bolt.New(bolt.NewJSONHandler(io.Discard)), nil)
	defer hub.Stop()

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebSocketHub_PublishIsScopedToUser(t *testing.T) {
	hub := newTestHub(t)

	alice := &handlers.MockClient{SendChan: make(chan []byte, 1), UserID: "alice"}
	bob := &handlers.MockClient{SendChan: make(chan []byte, 1), UserID: "bob"}
	hub.Register(alice)
	hub.Register(bob)

	hub.Publish(engine.Event{Type: engine.EventCreated, UserID: "alice", MemoryID: "m1", At: time.Now()})

	select {
	case msg := <-alice.SendChan:
		assert.Contains(t, string(msg), `"memory_created"`)
		assert.Contains(t, string(msg), `"m1"`)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case msg := <-bob.SendChan:
		t.Fatalf("bob received alice's event: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
