package llm

import (
	"log"

	"github.com/xiaot623/gogo/chatbot/internal/config"
)

const (
	// ModeMock indicates mock mode should be used (GOGO_MODE=MOCK).
	ModeMock = "MOCK"

	ProviderBackend = "backend"
	ProviderOpenAI  = "openai"
)

// NewClient creates a generation client from configuration.
// If GOGO_MODE=MOCK, returns a MockClient; otherwise the configured provider.
func NewClient(cfg *config.Config) Client {
	if cfg.Mode == ModeMock {
		log.Println("GOGO_MODE=MOCK detected, using mock generation client")
		return NewMockClient()
	}

	switch cfg.GenerationProvider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.LLMTimeout)
	case ProviderBackend, "":
	default:
		log.Printf("WARN: unknown generation provider %q, using backend", cfg.GenerationProvider)
	}
	return NewHTTPClient(cfg.LLMServerURL, cfg.LLMTimeout)
}
