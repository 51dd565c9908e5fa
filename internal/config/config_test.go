package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10, cfg.MaxContextMessages)
	assert.Equal(t, 256, cfg.DefaultMaxTokens)
	assert.InDelta(t, 0.7, cfg.DefaultTemperature, 1e-9)
	assert.Equal(t, 3, cfg.DefaultTopK)
	assert.InDelta(t, 0.7, cfg.MinSimilarityScore, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.SessionTimeout)
	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, cfg.LLMServerURL, cfg.EmbeddingURL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_CONTEXT_MESSAGES", "4")
	t.Setenv("DEFAULT_TEMPERATURE", "0.2")
	t.Setenv("SESSION_TIMEOUT_HOURS", "2")
	t.Setenv("LLM_TIMEOUT", "15")
	t.Setenv("EMBEDDING_TIMEOUT", "500ms")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("EMBEDDING_URL", "http://embed.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 4, cfg.MaxContextMessages)
	assert.InDelta(t, 0.2, cfg.DefaultTemperature, 1e-9)
	assert.Equal(t, 2*time.Hour, cfg.SessionTimeout)
	assert.Equal(t, 15*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.EmbeddingTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "http://embed.test", cfg.EmbeddingURL)
}

func TestLoadInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("MIN_SIMILARITY_SCORE", "high")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.InDelta(t, 0.7, cfg.MinSimilarityScore, 1e-9)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatbot.yaml")
	content := `
port: 7070
vector_index: weaviate
weaviate_url: http://weaviate:8080
llm_timeout: 45s
default_top_k: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DEFAULT_TOP_K", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "weaviate", cfg.VectorIndex)
	assert.Equal(t, "http://weaviate:8080", cfg.WeaviateURL)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	// environment wins over the file
	assert.Equal(t, 7, cfg.DefaultTopK)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("MIN_SIMILARITY_SCORE", "1.5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
