// Package domain defines the core domain models for the chat service.
package domain

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the roles the store accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// StreamEventType is the kind of an event relayed to a streaming caller.
type StreamEventType string

const (
	StreamEventStart    StreamEventType = "start"
	StreamEventToken    StreamEventType = "token"
	StreamEventComplete StreamEventType = "complete"
	StreamEventError    StreamEventType = "error"
)

// Terminal reports whether no event may follow one of this type.
func (t StreamEventType) Terminal() bool {
	return t == StreamEventComplete || t == StreamEventError
}

// BackendEventType is the kind of a frame received from the generation backend.
type BackendEventType string

const (
	BackendEventChunk    BackendEventType = "chunk"
	BackendEventComplete BackendEventType = "complete"
	BackendEventError    BackendEventType = "error"
)
