package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CachedClient memoises embeddings in Redis. Cache failures are logged and
// fall through to the wrapped client.
type CachedClient struct {
	next   Client
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedClient wraps next with a Redis cache. namespace separates vectors
// produced by different models.
func NewCachedClient(next Client, rdb redis.UniversalClient, namespace string, ttl time.Duration) *CachedClient {
	return &CachedClient{
		next:   next,
		rdb:    rdb,
		prefix: "chatbot:emb:" + namespace + ":",
		ttl:    ttl,
	}
}

func (c *CachedClient) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Embed serves cached vectors and embeds only the misses. Concurrent calls
// for the same set of misses share one backend request.
func (c *CachedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("WARN: embedding cache read failed: %v", err)
		cached = nil
	}
	var missIdx []int
	for i := range texts {
		if i < len(cached) {
			if s, ok := cached[i].(string); ok {
				var vec []float32
				if json.Unmarshal([]byte(s), &vec) == nil {
					out[i] = vec
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	misses := make([]string, len(missIdx))
	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		misses[j] = texts[i]
		missKeys[j] = keys[i]
	}

	v, err, _ := c.group.Do(strings.Join(missKeys, ","), func() (interface{}, error) {
		return c.next.Embed(ctx, misses)
	})
	if err != nil {
		return nil, err
	}
	vectors := v.([][]float32)

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = vectors[j]
		data, err := json.Marshal(vectors[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, missKeys[j], data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("WARN: embedding cache write failed: %v", err)
	}
	return out, nil
}
