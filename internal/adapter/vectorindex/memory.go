package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force in-process index.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

// Upsert inserts entries or replaces them by id.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry id is required")
		}
		if _, exists := m.entries[e.ID]; !exists {
			m.order = append(m.order, e.ID)
		}
		m.entries[e.ID] = copyEntry(e)
	}
	return nil
}

// Delete removes entries; unknown ids are ignored.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := false
	for _, id := range ids {
		if _, ok := m.entries[id]; ok {
			delete(m.entries, id)
			removed = true
		}
	}
	if removed {
		kept := m.order[:0]
		for _, id := range m.order {
			if _, ok := m.entries[id]; ok {
				kept = append(kept, id)
			}
		}
		m.order = kept
	}
	return nil
}

// Query scans every entry. Ties keep insertion order.
func (m *MemoryIndex) Query(ctx context.Context, q Query) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.TopK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		if !matchesFilter(e.Metadata, q.Filter) {
			continue
		}
		sim, err := cosine(q.Vector, e.Vector)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", id, err)
		}
		matches = append(matches, Match{
			ID:       e.ID,
			Content:  e.Content,
			Metadata: copyMetadata(e.Metadata),
			Score:    sim,
			Distance: 1 - sim,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

// Count returns the number of stored entries.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

func copyEntry(e Entry) Entry {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	return Entry{
		ID:       e.ID,
		Vector:   vec,
		Content:  e.Content,
		Metadata: copyMetadata(e.Metadata),
	}
}

func copyMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
