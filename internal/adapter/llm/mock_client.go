package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// MockClient is a mock implementation of Client for local runs and tests.
type MockClient struct{}

// NewMockClient creates a new mock generation client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Health always reports ready.
func (m *MockClient) Health(ctx context.Context) bool {
	return true
}

// Complete returns a mock response.
func (m *MockClient) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	responseContent := m.generateMockResponse(req)
	return &ChatResponse{
		Response: responseContent,
		Usage:    m.usage(req, responseContent),
	}, nil
}

// StreamChat simulates a streaming response, one word per chunk.
func (m *MockClient) StreamChat(ctx context.Context, req *ChatRequest, callback StreamCallback) error {
	responseContent := m.generateMockResponse(req)

	for _, chunk := range splitWords(responseContent) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := callback(domain.BackendEvent{Type: domain.BackendEventChunk, Content: chunk}); err != nil {
			return err
		}
	}

	return callback(domain.BackendEvent{
		Type:         domain.BackendEventComplete,
		FullResponse: responseContent,
		Usage:        m.usage(req, responseContent),
	})
}

// generateMockResponse generates a mock response based on the request.
func (m *MockClient) generateMockResponse(req *ChatRequest) string {
	// Get the last user message
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response from the generation backend."
	}
	if len(req.Context) > 0 {
		return fmt.Sprintf("[MOCK] Received your message: %q with %d reference passages.", truncate(lastUserMessage, 100), len(req.Context))
	}
	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

// usage provides a rough token count estimate.
func (m *MockClient) usage(req *ChatRequest, response string) *domain.TokenUsage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(msg.Content) / 4
	}
	completion := len(response) / 4
	return &domain.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// splitWords splits s after every space so the chunks concatenate back to s.
func splitWords(s string) []string {
	var chunks []string
	for _, f := range strings.SplitAfter(s, " ") {
		if f != "" {
			chunks = append(chunks, f)
		}
	}
	return chunks
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
