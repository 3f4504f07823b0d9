// Package realtime pushes notification payloads to connected operator UIs
// over WebSocket. It is the delivery channel behind the notification
// dispatcher; missed frames are not replayed, the stored rows are the
// durable record.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hilops/titleflow/internal/notify"
)

const defaultWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// conn is one registered WebSocket connection. Writes are serialized through
// the mutex; gorilla connections do not allow concurrent writers.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
	return c.ws.WriteJSON(v)
}

// Hub tracks per-user connections and fans published payloads out to them.
// It implements notify.Publisher.
type Hub struct {
	mu           sync.RWMutex
	conns        map[string]map[*conn]bool
	writeTimeout time.Duration
	log          zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		conns:        make(map[string]map[*conn]bool),
		writeTimeout: defaultWriteTimeout,
		log:          log.With().Str("component", "realtime").Logger(),
	}
}

var _ notify.Publisher = (*Hub)(nil)

// Publish sends the payload to every connection the user has open. A user
// with no connections is not an error; the stored notification row is the
// durable copy and the UI catches up on reconnect. Connections that fail the
// write are dropped.
func (h *Hub) Publish(ctx context.Context, userID string, payload notify.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	var failed []*conn
	for _, c := range targets {
		if err := c.writeJSON(payload, h.writeTimeout); err != nil {
			h.log.Debug().Err(err).Str("user", userID).Msg("dropping dead connection")
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		h.unregister(userID, c)
		_ = c.ws.Close()
	}

	if len(failed) == len(targets) {
		return fmt.Errorf("all %d connections for %s failed", len(targets), userID)
	}
	return nil
}

// Handler upgrades HTTP requests to WebSocket connections. The user is
// identified by the `user` query parameter.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "user query parameter is required", http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		c := &conn{ws: ws}
		h.register(userID, c)
		h.log.Debug().Str("user", userID).Msg("websocket client connected")

		// Frames from the client are ignored; the read loop exists to detect
		// the close.
		go func() {
			defer func() {
				h.unregister(userID, c)
				_ = ws.Close()
				h.log.Debug().Str("user", userID).Msg("websocket client disconnected")
			}()
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// ConnectionCount returns how many connections the user has open.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.conns {
		for c := range set {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = c.ws.Close()
		}
		delete(h.conns, userID)
	}
}

func (h *Hub) register(userID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*conn]bool)
	}
	h.conns[userID][c] = true
}

func (h *Hub) unregister(userID string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], c)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// DecodePayload parses a frame produced by Publish. Clients use it to get
// back the typed payload.
func DecodePayload(data []byte) (notify.Payload, error) {
	var p notify.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return notify.Payload{}, fmt.Errorf("failed to decode payload frame: %w", err)
	}
	return p, nil
}
