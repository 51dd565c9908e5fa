// Package embedding provides clients that turn text into dense vectors.
package embedding

import "context"

// Client embeds texts. The result has one vector per input, in input order.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Interface assertions
var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*HashClient)(nil)
	_ Client = (*CachedClient)(nil)
)
