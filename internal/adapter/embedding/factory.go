package embedding

import (
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/xiaot623/gogo/chatbot/internal/config"
)

const (
	ModeMock = "MOCK"

	ProviderBackend = "backend"
	ProviderOpenAI  = "openai"
	ProviderHash    = "hash"
)

// NewClient creates an embedding client from configuration. When rdb is
// non-nil the client is wrapped with a Redis cache.
func NewClient(cfg *config.Config, rdb redis.UniversalClient) Client {
	var client Client
	provider := cfg.EmbeddingProvider
	if cfg.Mode == ModeMock {
		provider = ProviderHash
	}

	switch provider {
	case ProviderHash:
		log.Println("using hash embedding client")
		client = NewHashClient(DefaultHashDimensions)
	case ProviderOpenAI:
		client = NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingTimeout)
	default:
		if provider != ProviderBackend && provider != "" {
			log.Printf("WARN: unknown embedding provider %q, using backend", provider)
		}
		client = NewHTTPClient(cfg.EmbeddingURL, cfg.EmbeddingTimeout)
	}

	if rdb != nil && provider != ProviderHash {
		client = NewCachedClient(client, rdb, provider+":"+cfg.EmbeddingModel, cfg.EmbeddingCacheTTL)
	}
	return client
}
