// Package realtime holds the in-process pub/sub hub that pushes chat
// messages, read receipts and notifications to connected users.
package realtime

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Event is the envelope pushed to websocket clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	EventMessage      = "message"
	EventRead         = "read"
	EventNotification = "notification"
	EventError        = "error"
	EventPong         = "pong"
)

// Hub tracks one live websocket connection per authenticated user.
// Registering a second connection for the same user closes the first.
type Hub struct {
	connections map[uuid.UUID]*websocket.Conn
	mutex       sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*websocket.Conn),
	}
}

func (h *Hub) Register(userID uuid.UUID, conn *websocket.Conn) {
	h.mutex.Lock()
	old := h.connections[userID]
	h.connections[userID] = conn
	h.mutex.Unlock()

	if old != nil && old != conn {
		// Kick the displaced handler out of its blocked read so its
		// goroutine exits instead of lingering until the client drops.
		_ = old.SetReadDeadline(time.Now())
		_ = old.Close()
	}
}

// Unregister drops the pairing only while conn is still the user's
// registered connection. A handler tearing down after being displaced by
// a reconnect must not remove the replacement.
func (h *Hub) Unregister(userID uuid.UUID, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.connections[userID] == conn {
		delete(h.connections, userID)
		if conn != nil {
			_ = conn.Close()
		}
	}
}

// SendToUser pushes an event to a user's connection. Returns false when
// the user is offline or the write fails (the dead connection is dropped).
func (h *Hub) SendToUser(userID uuid.UUID, event Event) bool {
	h.mutex.RLock()
	conn, exists := h.connections[userID]
	h.mutex.RUnlock()

	if !exists || conn == nil {
		return false
	}

	if err := conn.WriteJSON(event); err != nil {
		h.Unregister(userID, conn)
		return false
	}

	return true
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.connections[userID]
	return exists
}

func (h *Hub) OnlineCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.connections)
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for userID, conn := range h.connections {
		if conn != nil {
			_ = conn.Close()
		}
		delete(h.connections, userID)
	}
}
