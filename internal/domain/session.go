package domain

import "time"

// Session represents a conversation.
type Session struct {
	SessionID    string                 `json:"session_id"`
	CreatedAt    time.Time              `json:"created_at"`
	LastAccessed time.Time              `json:"last_accessed"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Message represents a single message in a session.
type Message struct {
	MessageID  string      `json:"message_id"`
	SessionID  string      `json:"session_id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`
}

// TokenUsage represents token usage information.
type TokenUsage struct {
	PromptTokens     int   `json:"prompt_tokens,omitempty"`
	CompletionTokens int   `json:"completion_tokens,omitempty"`
	TotalTokens      int   `json:"total_tokens,omitempty"`
	DurationMs       int64 `json:"duration_ms,omitempty"`
}

// ContextMessage is one entry of the context window sent to generation.
type ContextMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
