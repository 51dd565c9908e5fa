package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection represents a single WebSocket connection. All writes go through
// the send queue and are performed by the connection's write pump.
type Connection struct {
	ID   string
	Conn *websocket.Conn

	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub tracks live connections so they can be closed on shutdown.
type Hub struct {
	connections map[string]*Connection
	mu          sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
	}
}

// NewConnection wraps ws and registers it with the hub. The connection's
// context ends when the connection is closed or unregistered.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	conn := &Connection{
		ID:     uuid.New().String(),
		Conn:   ws,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()
	return conn
}

// Unregister removes a connection and cancels its context.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	delete(h.connections, conn.ID)
	h.mu.Unlock()
	conn.cancel()
}

// CloseAll cancels every live connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.Unregister(c)
	}
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SendJSON queues v for the write pump, waiting while the queue is full.
// It fails once the connection is gone.
func (c *Connection) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Context is cancelled when the connection goes away.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// WriteMessage writes a message to the connection. Only the write pump calls it.
func (c *Connection) WriteMessage(messageType int, data []byte, timeout time.Duration) error {
	c.Conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.Conn.WriteMessage(messageType, data)
}
