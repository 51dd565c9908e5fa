package domain

import "time"

// GenerationParams are the sampling parameters forwarded to the backend.
type GenerationParams struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	DoSample     bool    `json:"do_sample"`
}

// ChatRequest is the body of POST /api/chat and /api/chat/stream.
// Optional fields are pointers so that unset values fall back to configured defaults.
type ChatRequest struct {
	SessionID    string   `json:"session_id" validate:"required"`
	Message      string   `json:"message" validate:"required,notblank"`
	MaxNewTokens *int     `json:"max_new_tokens,omitempty" validate:"omitempty,min=1,max=8192"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	DoSample     *bool    `json:"do_sample,omitempty"`
	UseRAG       bool     `json:"use_rag"`
	TopK         *int     `json:"top_k,omitempty" validate:"omitempty,max=100"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	MessageID  string                 `json:"message_id"`
	Role       Role                   `json:"role"`
	Content    string                 `json:"content"`
	CreatedAt  time.Time              `json:"created_at"`
	TokenUsage *TokenUsage            `json:"token_usage,omitempty"`
	RAGContext []RetrievedContextItem `json:"rag_context,omitempty"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Metadata map[string]interface{} `json:"metadata"`
}

// MessagesHistoryResponse is the body returned by GET /api/sessions/:id/messages.
type MessagesHistoryResponse struct {
	SessionID  string    `json:"session_id"`
	Messages   []Message `json:"messages"`
	TotalCount int       `json:"total_count"`
}

// CreateDocumentRequest is the body of POST /api/documents.
type CreateDocumentRequest struct {
	SessionID string `json:"session_id" validate:"required,notblank"`
	Title     string `json:"title" validate:"required,max=512"`
	Content   string `json:"content" validate:"required,notblank"`
}

// CreateDocumentResponse is the body returned by POST /api/documents.
type CreateDocumentResponse struct {
	DocumentID   string   `json:"document_id"`
	Title        string   `json:"title"`
	ChunksCount  int      `json:"chunks_count"`
	EmbeddingIDs []string `json:"embedding_ids"`
}

// HealthResponse is the body returned by GET /api/health.
type HealthResponse struct {
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
	LLMServerAvailable bool      `json:"llm_server_available"`
	DatabaseConnected  bool      `json:"database_connected"`
}

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
