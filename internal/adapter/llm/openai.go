package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// contextPreamble introduces retrieved passages when the backend has no
// native retrieval-augmented mode.
const contextPreamble = "Answer using the following reference passages when they are relevant:\n\n"

// OpenAIClient generates through an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client for the given model. An empty baseURL
// targets api.openai.com.
func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Health lists models as a readiness check.
func (c *OpenAIClient) Health(ctx context.Context) bool {
	_, err := c.client.ListModels(ctx)
	return err == nil
}

// Complete sends a non-streaming chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.BackendError{StatusCode: http.StatusOK, Message: "no choices in response"}
	}
	return &ChatResponse{
		Response: resp.Choices[0].Message.Content,
		Usage: &domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// StreamChat relays content deltas as chunk events and finishes with a
// single complete event carrying the assembled text.
func (c *OpenAIClient) StreamChat(ctx context.Context, req *ChatRequest, callback StreamCallback) error {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return wrapOpenAIError(err)
	}
	defer stream.Close()

	var full strings.Builder
	var usage *domain.TokenUsage
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return wrapOpenAIError(err)
		}
		if resp.Usage != nil {
			usage = &domain.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if err := callback(domain.BackendEvent{Type: domain.BackendEventChunk, Content: choice.Delta.Content}); err != nil {
				return err
			}
		}
	}

	return callback(domain.BackendEvent{
		Type:         domain.BackendEventComplete,
		FullResponse: full.String(),
		Usage:        usage,
	})
}

func (c *OpenAIClient) buildRequest(req *ChatRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if len(req.Context) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: contextPreamble + strings.Join(req.Context, "\n\n"),
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: req.MaxNewTokens,
		Stream:    stream,
	}
	// Greedy decoding is requested by leaving temperature at zero.
	if req.DoSample {
		out.Temperature = float32(req.Temperature)
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.BackendError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &domain.BackendError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
}
