// Package ws provides the WebSocket chat transport.
package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/service"
)

// Options tunes connection keepalive and limits. Zero fields take defaults.
type Options struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (o *Options) setDefaults() {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.ReadTimeout {
		o.PingInterval = o.ReadTimeout * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
}

// Server handles WebSocket connections.
type Server struct {
	service  *service.Service
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(svc *service.Service, h *Hub, opts Options) *Server {
	opts.setDefaults()
	return &Server{
		service: svc,
		hub:     h,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
// GET /ws/chat
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		log.Printf("WARN: failed to upgrade WebSocket: %v", err)
		return nil
	}

	conn := s.hub.NewConnection(ws)
	ws.SetReadLimit(s.opts.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
	defer s.hub.Unregister(conn)

	conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: WebSocket read error on %s: %v", conn.ID, err)
			}
			return
		}
		s.handleMessage(conn, message)
	}
}

// writePump writes queued messages and keepalive pings.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		s.hub.Unregister(conn)
		conn.Conn.Close()
	}()

	for {
		select {
		case message := <-conn.send:
			if err := conn.WriteMessage(websocket.TextMessage, message, s.opts.WriteTimeout); err != nil {
				log.Printf("WARN: failed to write to %s: %v", conn.ID, err)
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil, s.opts.WriteTimeout); err != nil {
				return
			}

		case <-conn.ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), s.opts.WriteTimeout)
			return
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, "", "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case TypeChat:
		s.handleChat(conn, data)
	default:
		s.sendError(conn, base.RequestID, "", ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

// handleChat runs a streamed chat turn without blocking the read loop. Turns
// on the same session are serialized by the service.
func (s *Server) handleChat(conn *Connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", "", ErrorCodeInvalidMessage, "invalid chat message")
		return
	}
	if err := msg.ChatRequest.Validate(); err != nil {
		s.sendError(conn, msg.RequestID, msg.SessionID, ErrorCodeInvalidMessage, err.Error())
		return
	}

	go func() {
		req := msg.ChatRequest
		err := s.service.ProcessChatStream(conn.Context(), &req, func(ev domain.StreamEvent) error {
			return conn.SendJSON(EventMessage{RequestID: msg.RequestID, StreamEvent: ev})
		})
		if err != nil {
			code := ErrorCodeInternal
			switch {
			case errors.Is(err, domain.ErrSessionNotFound):
				code = ErrorCodeSessionNotFound
			case errors.Is(err, domain.ErrRequestBlocked):
				code = ErrorCodeRequestBlocked
			default:
				log.Printf("ERROR: WebSocket chat for session %s failed: %v", req.SessionID, err)
			}
			s.sendError(conn, msg.RequestID, req.SessionID, code, err.Error())
			return
		}

		done := DoneMessage{
			BaseMessage: BaseMessage{Type: TypeDone, RequestID: msg.RequestID},
			SessionID:   req.SessionID,
		}
		if err := conn.SendJSON(done); err != nil {
			log.Printf("WARN: connection %s closed before done: %v", conn.ID, err)
		}
	}()
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *Connection, requestID, sessionID, code, message string) {
	errMsg := ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      TypeError,
			RequestID: requestID,
		},
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	}
	if err := conn.SendJSON(errMsg); err != nil {
		log.Printf("WARN: failed to send error to %s: %v", conn.ID, err)
	}
}
