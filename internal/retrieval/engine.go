// Package retrieval turns a user query into reference passages drawn from
// indexed document chunks.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/embedding"
	"github.com/xiaot623/gogo/chatbot/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/metrics"
)

// Metadata keys stored alongside every chunk vector.
const (
	MetaDocumentID    = "document_id"
	MetaDocumentTitle = "document_title"
	MetaSessionID     = "session_id"
	MetaChunkIndex    = "chunk_index"
)

// MetadataKeys lists the metadata keys an index must store.
var MetadataKeys = []string{MetaDocumentID, MetaDocumentTitle, MetaSessionID, MetaChunkIndex}

var tracer = otel.Tracer("github.com/xiaot623/gogo/chatbot/internal/retrieval")

// Options configures an Engine.
type Options struct {
	DefaultTopK        int
	MinSimilarityScore float64
}

// Engine embeds queries and chunks and talks to the similarity index.
type Engine struct {
	embedder embedding.Client
	index    vectorindex.Index
	opts     Options
	metrics  *metrics.Metrics
}

// NewEngine creates a retrieval engine. m may be nil.
func NewEngine(embedder embedding.Client, index vectorindex.Index, opts Options, m *metrics.Metrics) *Engine {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 3
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		opts:     opts,
		metrics:  m,
	}
}

// PrepareContext returns passages formatted as "[<title>]\n<chunk>" and the
// parallel metadata list, in index order. Results scoring below the minimum
// similarity are dropped; no result above it yields two empty slices.
func (e *Engine) PrepareContext(ctx context.Context, query, sessionID string, topK int) ([]string, []domain.RetrievedContextItem, error) {
	if topK <= 0 {
		topK = e.opts.DefaultTopK
	}
	ctx, span := tracer.Start(ctx, "retrieval.prepare_context",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("retrieval.top_k", topK),
		),
	)
	defer span.End()
	start := time.Now()

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		err := fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
		span.RecordError(err)
		return nil, nil, err
	}

	q := vectorindex.Query{Vector: vectors[0], TopK: topK}
	if sessionID != "" {
		q.Filter = map[string][]string{MetaSessionID: {sessionID}}
	}
	matches, err := e.index.Query(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("query index: %w", err)
	}

	passages := []string{}
	items := []domain.RetrievedContextItem{}
	for _, m := range matches {
		score := clamp(m.Score)
		if score < e.opts.MinSimilarityScore {
			continue
		}
		title := m.Metadata[MetaDocumentTitle]
		if title == "" {
			title = domain.UnknownDocumentTitle
		}
		passages = append(passages, fmt.Sprintf("[%s]\n%s", title, m.Content))
		items = append(items, domain.RetrievedContextItem{
			DocumentID:      m.Metadata[MetaDocumentID],
			DocumentTitle:   title,
			ChunkContent:    m.Content,
			SimilarityScore: score,
		})
	}

	span.SetAttributes(
		attribute.Int("retrieval.candidates", len(matches)),
		attribute.Int("retrieval.hits", len(items)),
	)
	e.metrics.RecordRetrieval(len(items), time.Since(start))
	return passages, items, nil
}

// IndexChunks embeds chunk texts and stores them in the index. It returns one
// embedding id per chunk, in chunk order.
func (e *Engine) IndexChunks(ctx context.Context, doc *domain.Document, chunks []domain.DocumentChunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "retrieval.index_chunks",
		trace.WithAttributes(
			attribute.String("document.id", doc.DocumentID),
			attribute.Int("document.chunks", len(chunks)),
		),
	)
	defer span.End()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: expected %d vectors, got %d", len(chunks), len(vectors))
	}

	ids := make([]string, len(chunks))
	entries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		ids[i] = uuid.New().String()
		entries[i] = vectorindex.Entry{
			ID:      ids[i],
			Vector:  vectors[i],
			Content: c.Content,
			Metadata: map[string]string{
				MetaDocumentID:    doc.DocumentID,
				MetaDocumentTitle: doc.Title,
				MetaSessionID:     doc.SessionID,
				MetaChunkIndex:    strconv.Itoa(c.ChunkIndex),
			},
		}
	}
	if err := e.index.Upsert(ctx, entries); err != nil {
		span.RecordError(err)
		// a batch may be partially stored
		if derr := e.index.Delete(context.WithoutCancel(ctx), ids); derr != nil {
			log.Printf("WARN: failed to remove partial upsert of document %s: %v", doc.DocumentID, derr)
		}
		return nil, fmt.Errorf("upsert chunks: %w", err)
	}
	return ids, nil
}

// RemoveEmbeddings deletes vectors by embedding id.
func (e *Engine) RemoveEmbeddings(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := e.index.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// IndexedCount reports how many vectors the index holds.
func (e *Engine) IndexedCount(ctx context.Context) (int, error) {
	return e.index.Count(ctx)
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
