package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-core/internal/observability"
	"chat-core/internal/protocol"
)

// client wraps a connection with its write lock; gorilla connections allow a
// single concurrent writer.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(ev protocol.Event) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub maintains the authenticated socket connections, one per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	info    map[string]ConnInfo
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		info:    make(map[string]ConnInfo),
	}
}

// Register adds an authenticated user's connection and announces the user
// online. A second connection for the same user replaces the first.
func (h *Hub) Register(userID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.conn.Close()
	}
	h.clients[userID] = &client{conn: conn}
	h.info[userID] = info
	h.mu.Unlock()

	h.Broadcast(protocol.UserOnline{UserID: userID}, userID)
}

// Unregister removes the user's connection if it is still the registered one
// and announces the user offline.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	current, ok := h.clients[userID]
	if !ok || current.conn != conn {
		h.mu.Unlock()
		return
	}
	delete(h.clients, userID)
	delete(h.info, userID)
	h.mu.Unlock()

	h.Broadcast(protocol.UserOffline{UserID: userID}, userID)
}

// IsOnline reports whether the user has a registered connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendTo delivers an event to one user. Returns false when the user is not
// connected or the write failed; failed connections are evicted.
func (h *Hub) SendTo(userID string, ev protocol.Event) bool {
	h.mu.RLock()
	cl := h.clients[userID]
	h.mu.RUnlock()

	if cl == nil {
		return false
	}
	if err := cl.write(ev); err != nil {
		log.Printf("websocket write error: %v", err)
		cl.conn.Close()
		h.publishWSError(userID, err)
		h.Unregister(userID, cl.conn)
		return false
	}
	return true
}

// Broadcast sends an event to every connected user except one.
func (h *Hub) Broadcast(ev protocol.Event, exceptUserID string) {
	h.mu.RLock()
	targets := make(map[string]*client, len(h.clients))
	for id, cl := range h.clients {
		if id != exceptUserID {
			targets[id] = cl
		}
	}
	h.mu.RUnlock()

	for id, cl := range targets {
		if err := cl.write(ev); err != nil {
			log.Printf("websocket write error: %v", err)
			cl.conn.Close()
			h.publishWSError(id, err)
			h.Unregister(id, cl.conn)
		}
	}
}

func (h *Hub) publishWSError(userID string, err error) {
	h.mu.RLock()
	info, ok := h.info[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
