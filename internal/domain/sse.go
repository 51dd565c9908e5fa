package domain

// StreamEvent is one event relayed to a streaming caller.
type StreamEvent struct {
	Type        StreamEventType        `json:"type"`
	SessionID   string                 `json:"session_id,omitempty"`
	MessageID   string                 `json:"message_id,omitempty"`
	Content     string                 `json:"content,omitempty"`
	TokenCount  int                    `json:"token_count,omitempty"`
	TotalTokens *int                   `json:"total_tokens,omitempty"` // set on complete, zero included
	RAGContext  []RetrievedContextItem `json:"rag_context,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// BackendEvent is a decoded frame of the generation backend stream.
type BackendEvent struct {
	Type         BackendEventType `json:"type"`
	Content      string           `json:"content,omitempty"`
	FullResponse string           `json:"full_response,omitempty"`
	Message      string           `json:"message,omitempty"`
	Usage        *TokenUsage      `json:"usage,omitempty"`
}
