package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size produced by HashClient.
const DefaultHashDimensions = 256

// HashClient is a deterministic offline embedder used in mock mode and tests.
// Each lowercased word is hashed into a bucket; the vector is L2-normalised,
// so texts sharing vocabulary score high under cosine similarity.
type HashClient struct {
	dims int
}

// NewHashClient creates a hash embedder with the given dimensionality.
func NewHashClient(dims int) *HashClient {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashClient{dims: dims}
}

// Embed never fails except on context cancellation.
func (c *HashClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = c.vector(text)
	}
	return out, nil
}

func (c *HashClient) vector(text string) []float32 {
	vec := make([]float32, c.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(c.dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
