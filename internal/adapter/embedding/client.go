package embedding

import (
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

// DefaultTimeout bounds every embedding call.
const DefaultTimeout = 30 * time.Second

// HTTPClient calls the embedding service's POST /embeddings endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a new embedding service client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends texts to the embedding service.
func (c *HTTPClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", domain.ErrBackendUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.BackendError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &domain.BackendError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to unmarshal response: %v", err)}
	}
	if len(result.Embeddings) != len(texts) {
		return nil, &domain.BackendError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)),
		}
	}
	return result.Embeddings, nil
}
