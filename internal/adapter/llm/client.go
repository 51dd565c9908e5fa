package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// DefaultTimeout bounds every call to the generation backend.
const DefaultTimeout = 60 * time.Second

// HTTPClient talks to the generation backend over its HTTP/SSE protocol.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a new generation backend client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Health checks GET /health.
func (c *HTTPClient) Health(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Complete sends a non-streaming generation request.
func (c *HTTPClient) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	req.UseRAG = len(req.Context) > 0

	resp, err := c.post(ctx, "/chat", req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", domain.ErrBackendUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.BackendError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	var result ChatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &domain.BackendError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to unmarshal response: %v", err)}
	}
	return &result, nil
}

// StreamChat sends a streaming generation request and relays decoded frames.
func (c *HTTPClient) StreamChat(ctx context.Context, req *ChatRequest, callback StreamCallback) error {
	req.UseRAG = len(req.Context) > 0

	resp, err := c.post(ctx, "/chat/stream", req, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &domain.BackendError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	// Parse SSE stream
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			event, done, ok := decodeFrame(line)
			if done {
				return nil
			}
			if ok {
				if cbErr := callback(event); cbErr != nil {
					return cbErr
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: failed to read stream: %w", domain.ErrBackendUnavailable, err)
		}
	}
}

// decodeFrame decodes one line of the backend stream. done is set for the
// [DONE] sentinel; ok is false for blank lines, non-data lines, malformed
// JSON and unknown frame types, which are all skipped.
func decodeFrame(line string) (event domain.BackendEvent, done bool, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return event, false, false
	}
	if !strings.HasPrefix(line, "data:") {
		return event, false, false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return event, true, false
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return domain.BackendEvent{}, false, false
	}
	switch event.Type {
	case domain.BackendEventChunk, domain.BackendEventComplete, domain.BackendEventError:
		return event, false, true
	}
	return domain.BackendEvent{}, false, false
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, accept string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	return resp, nil
}

// errorMessage extracts a readable message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
		Error   interface{} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Detail != nil:
			return fmt.Sprint(payload.Detail)
		case payload.Error != nil:
			return fmt.Sprint(payload.Error)
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}
