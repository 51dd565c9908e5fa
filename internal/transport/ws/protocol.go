package ws

import "github.com/xiaot623/gogo/chatbot/internal/domain"

// Message types from client to server
const (
	TypeChat = "chat"
)

// Message types from server to client. Stream events keep their own types
// (start, token, complete, error).
const (
	TypeDone  = "done"
	TypeError = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeSessionNotFound = "session_not_found"
	ErrorCodeRequestBlocked  = "request_blocked"
	ErrorCodeInternal        = "internal_error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// ChatMessage asks for one streamed chat turn.
type ChatMessage struct {
	BaseMessage
	domain.ChatRequest
}

// EventMessage relays one stream event, tagged with the request it answers.
type EventMessage struct {
	RequestID string `json:"request_id,omitempty"`
	domain.StreamEvent
}

// DoneMessage follows the terminal event of a request.
type DoneMessage struct {
	BaseMessage
	SessionID string `json:"session_id,omitempty"`
}

// ErrorMessage reports a request that was rejected before streaming began.
type ErrorMessage struct {
	BaseMessage
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
