// Package vectorindex stores embedding vectors and answers nearest-neighbour
// queries by cosine similarity.
package vectorindex

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when vectors of different sizes meet.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Entry is one stored vector with its payload.
type Entry struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// Query selects the TopK nearest entries. Filter restricts results to entries
// whose metadata value for each key is one of the listed values.
type Query struct {
	Vector []float32
	TopK   int
	Filter map[string][]string
}

// Match is a query result. Score is 1 - Distance, highest first.
type Match struct {
	ID       string
	Content  string
	Metadata map[string]string
	Score    float64
	Distance float64
}

// Index is a similarity index.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, q Query) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

var (
	_ Index = (*MemoryIndex)(nil)
	_ Index = (*WeaviateIndex)(nil)
)

func matchesFilter(metadata map[string]string, filter map[string][]string) bool {
	for key, values := range filter {
		if len(values) == 0 {
			continue
		}
		got, ok := metadata[key]
		if !ok {
			return false
		}
		found := false
		for _, v := range values {
			if v == got {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
