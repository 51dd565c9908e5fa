// Package llm provides clients for the text-generation backend.
package llm

import (
	"context"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// Client defines the operations the chat pipeline needs from a generation backend.
type Client interface {
	// Health reports whether the backend is ready. It never fails; any
	// transport problem counts as unavailable.
	Health(ctx context.Context) bool

	// Complete sends a single blocking generation request.
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamChat opens a streamed generation. The callback receives every
	// decoded backend event in delivery order; returning an error from it
	// stops the stream and that error is returned.
	StreamChat(ctx context.Context, req *ChatRequest, callback StreamCallback) error
}

// StreamCallback is called for each event in a streaming response.
type StreamCallback func(event domain.BackendEvent) error

// ChatRequest is the body of POST /chat and POST /chat/stream.
type ChatRequest struct {
	Messages     []domain.ContextMessage `json:"messages"`
	MaxNewTokens int                     `json:"max_new_tokens"`
	Temperature  float64                 `json:"temperature"`
	DoSample     bool                    `json:"do_sample"`
	UseRAG       bool                    `json:"use_rag,omitempty"`
	Context      []string                `json:"context,omitempty"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response string             `json:"response"`
	Usage    *domain.TokenUsage `json:"usage,omitempty"`
}

// Ensure clients implement the Client interface.
var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*MockClient)(nil)
)
