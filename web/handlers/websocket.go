package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/memvault/internal/engine"
)

// WebSocketHub fans engine events out to the websocket clients of the user
// that owns the changed memory. Clients never see another user's events.
type WebSocketHub struct {
	clients    map[clientInterface]bool
	publish    chan engine.Event
	register   chan clientInterface
	unregister chan clientInterface
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	log        *bolt.Logger
	origins    []string
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	getUserID() string
	close()
}

// Client represents a WebSocket connection.
type Client struct {
	hub    *WebSocketHub
	conn   *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send   chan []byte
	userID string
}

func (c *Client) getSendChannel() chan []byte { return c.send }
func (c *Client) getUserID() string           { return c.userID }

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewWebSocketHub creates a new WebSocket hub. allowedOrigins are full
// origins ("http://host:port") accepted in addition to the request's own host.
func NewWebSocketHub(log *bolt.Logger, allowedOrigins []string) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:    make(map[clientInterface]bool),
		publish:    make(chan engine.Event, 256),
		register:   make(chan clientInterface),
		unregister: make(chan clientInterface),
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
		origins:    originPatterns(allowedOrigins),
	}
}

// originPatterns turns "scheme://host:port" origins into the host patterns
// websocket.AcceptOptions expects. Entries without a scheme pass through.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}

// Run starts the hub's message processing loop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("user_id", client.getUserID()).Int("clients", count).Msg("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("user_id", client.getUserID()).Int("clients", count).Msg("websocket client disconnected")

		case ev := <-h.publish:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error().Err(err).Msg("failed to marshal websocket event")
				continue
			}

			// Full Lock: slow clients are dropped from the map.
			h.mu.Lock()
			for client := range h.clients {
				if client.getUserID() != ev.UserID {
					continue
				}
				sendChan := client.getSendChannel()
				select {
				case sendChan <- data:
				default:
					close(sendChan)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.log.Debug().Msg("websocket hub stopping")
			return
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Publish queues ev for delivery to ev.UserID's clients. It never blocks;
// events are dropped when the queue is full.
func (h *WebSocketHub) Publish(ev engine.Event) {
	select {
	case h.publish <- ev:
	default:
		h.log.Warn().Str("type", string(ev.Type)).Msg("websocket publish queue full, dropping event")
	}
}

// Register adds a client to the hub.
func (h *WebSocketHub) Register(client clientInterface) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(client clientInterface) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ServeHTTP handles WebSocket upgrade requests. It expects RequireUser to
// have run so the connection is bound to one user.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := UserFromContext(r.Context())
	if userID == "" {
		respondErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, "user id is required", nil)
		return
	}

	// Accept rejects cross-origin requests that match no pattern with 403.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

// writePump sends messages to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()

		if err != nil {
			c.hub.log.Warn().Err(err).Str("user_id", c.userID).Msg("websocket write failed")
			return
		}
	}
}

// readPump drains client messages to detect disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
	UserID   string
}

func (m *MockClient) getSendChannel() chan []byte { return m.SendChan }
func (m *MockClient) getUserID() string           { return m.UserID }
func (m *MockClient) close()                      {}
