// Package config provides configuration for the chat service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	CORSOrigins  []string `yaml:"cors_origins"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Generation backend
	Mode               string        `yaml:"mode"`
	LLMServerURL       string        `yaml:"llm_server_url"`
	LLMTimeout         time.Duration `yaml:"llm_timeout"`
	GenerationProvider string        `yaml:"generation_provider"`
	OpenAIAPIKey       string        `yaml:"openai_api_key"`
	OpenAIBaseURL      string        `yaml:"openai_base_url"`
	OpenAIModel        string        `yaml:"openai_model"`

	// Embeddings and similarity index
	EmbeddingProvider string        `yaml:"embedding_provider"`
	EmbeddingURL      string        `yaml:"embedding_url"`
	EmbeddingModel    string        `yaml:"embedding_model"`
	EmbeddingTimeout  time.Duration `yaml:"embedding_timeout"`
	VectorIndex       string        `yaml:"vector_index"`
	WeaviateURL       string        `yaml:"weaviate_url"`
	WeaviateClass     string        `yaml:"weaviate_class"`

	// Redis (optional): distributed session lock and embedding cache
	RedisURL          string        `yaml:"redis_url"`
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl"`
	SessionLockTTL    time.Duration `yaml:"session_lock_ttl"`

	// Chat defaults
	MaxContextMessages int     `yaml:"max_context_messages"`
	DefaultMaxTokens   int     `yaml:"default_max_tokens"`
	DefaultTemperature float64 `yaml:"default_temperature"`
	DefaultTopK        int     `yaml:"default_top_k"`
	MinSimilarityScore float64 `yaml:"min_similarity_score"`

	// Sessions
	SessionTimeout         time.Duration `yaml:"session_timeout"`
	SessionCleanupSchedule string        `yaml:"session_cleanup_schedule"`

	// Documents
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// Admission policy
	PolicyFile string `yaml:"policy_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:                   "0.0.0.0",
		Port:                   8080,
		CORSOrigins:            []string{"*"},
		DatabaseURL:            "file:chatbot.db?cache=shared&mode=rwc",
		LLMServerURL:           "http://localhost:8000",
		LLMTimeout:             60 * time.Second,
		GenerationProvider:     "backend",
		OpenAIModel:            "gpt-4o-mini",
		EmbeddingProvider:      "backend",
		EmbeddingModel:         "text-embedding-3-small",
		EmbeddingTimeout:       30 * time.Second,
		VectorIndex:            "memory",
		WeaviateClass:          "DocumentChunk",
		EmbeddingCacheTTL:      24 * time.Hour,
		SessionLockTTL:         5 * time.Minute,
		MaxContextMessages:     10,
		DefaultMaxTokens:       256,
		DefaultTemperature:     0.7,
		DefaultTopK:            3,
		MinSimilarityScore:     0.7,
		SessionTimeout:         24 * time.Hour,
		SessionCleanupSchedule: "@every 1h",
		ChunkSize:              1000,
		ChunkOverlap:           200,
	}
}

// Load loads configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Port = getEnvInt("PORT", cfg.Port)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	cfg.Mode = getEnv("GOGO_MODE", cfg.Mode)
	cfg.LLMServerURL = getEnv("LLM_SERVER_URL", cfg.LLMServerURL)
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.GenerationProvider = getEnv("GENERATION_PROVIDER", cfg.GenerationProvider)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", cfg.OpenAIModel)

	cfg.EmbeddingProvider = getEnv("EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	cfg.EmbeddingURL = getEnv("EMBEDDING_URL", cfg.EmbeddingURL)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingTimeout = getEnvDuration("EMBEDDING_TIMEOUT", cfg.EmbeddingTimeout)
	cfg.VectorIndex = getEnv("VECTOR_INDEX", cfg.VectorIndex)
	cfg.WeaviateURL = getEnv("WEAVIATE_URL", cfg.WeaviateURL)
	cfg.WeaviateClass = getEnv("WEAVIATE_CLASS", cfg.WeaviateClass)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.EmbeddingCacheTTL = getEnvDuration("EMBEDDING_CACHE_TTL", cfg.EmbeddingCacheTTL)
	cfg.SessionLockTTL = getEnvDuration("SESSION_LOCK_TTL", cfg.SessionLockTTL)

	cfg.MaxContextMessages = getEnvInt("MAX_CONTEXT_MESSAGES", cfg.MaxContextMessages)
	cfg.DefaultMaxTokens = getEnvInt("DEFAULT_MAX_TOKENS", cfg.DefaultMaxTokens)
	cfg.DefaultTemperature = getEnvFloat("DEFAULT_TEMPERATURE", cfg.DefaultTemperature)
	cfg.DefaultTopK = getEnvInt("DEFAULT_TOP_K", cfg.DefaultTopK)
	cfg.MinSimilarityScore = getEnvFloat("MIN_SIMILARITY_SCORE", cfg.MinSimilarityScore)

	if hours := getEnvInt("SESSION_TIMEOUT_HOURS", 0); hours > 0 {
		cfg.SessionTimeout = time.Duration(hours) * time.Hour
	}
	cfg.SessionCleanupSchedule = getEnv("SESSION_CLEANUP_SCHEDULE", cfg.SessionCleanupSchedule)

	cfg.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.PolicyFile = getEnv("POLICY_FILE", cfg.PolicyFile)

	if cfg.EmbeddingURL == "" {
		cfg.EmbeddingURL = cfg.LLMServerURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxContextMessages <= 0 {
		return fmt.Errorf("max_context_messages must be positive, got %d", c.MaxContextMessages)
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("default_top_k must be positive, got %d", c.DefaultTopK)
	}
	if c.MinSimilarityScore < 0 || c.MinSimilarityScore > 1 {
		return fmt.Errorf("min_similarity_score must be within [0,1], got %v", c.MinSimilarityScore)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go duration strings ("90s") or plain seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
