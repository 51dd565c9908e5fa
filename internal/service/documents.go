package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// splitText cuts content into trimmed, non-empty chunks.
func (s *Service) splitText(content string) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.config.ChunkSize),
		textsplitter.WithChunkOverlap(s.config.ChunkOverlap),
		textsplitter.WithSeparators(chunkSeparators),
	)
	parts, err := splitter.SplitText(content)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

// CreateDocument stores a document, splits it into chunks and indexes them.
// The document belongs to its session: only that session retrieves it, and
// deleting the session deletes it.
func (s *Service) CreateDocument(ctx context.Context, req *domain.CreateDocumentRequest) (*domain.CreateDocumentResponse, error) {
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}

	texts, err := s.splitText(req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split document: %w", err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("document has no text content")
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		DocumentID: "doc_" + uuid.New().String(),
		SessionID:  req.SessionID,
		Title:      req.Title,
		ChunkCount: len(texts),
		CreatedAt:  now,
	}
	chunks := make([]domain.DocumentChunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.DocumentChunk{
			ChunkID:    "chunk_" + uuid.New().String(),
			DocumentID: doc.DocumentID,
			ChunkIndex: i,
			Content:    text,
			CreatedAt:  now,
		}
	}

	if err := s.store.CreateDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	embeddingIDs, err := s.retriever.IndexChunks(ctx, doc, chunks)
	if err != nil {
		s.rollbackDocument(ctx, doc.DocumentID, nil)
		return nil, err
	}

	byChunk := make(map[string]string, len(chunks))
	for i, c := range chunks {
		byChunk[c.ChunkID] = embeddingIDs[i]
	}
	if err := s.store.SetChunkEmbeddingIDs(ctx, byChunk); err != nil {
		s.rollbackDocument(ctx, doc.DocumentID, embeddingIDs)
		return nil, fmt.Errorf("failed to record embedding ids: %w", err)
	}

	return &domain.CreateDocumentResponse{
		DocumentID:   doc.DocumentID,
		Title:        doc.Title,
		ChunksCount:  len(chunks),
		EmbeddingIDs: embeddingIDs,
	}, nil
}

// rollbackDocument undoes a failed ingestion: vectors first, then rows.
func (s *Service) rollbackDocument(ctx context.Context, documentID string, embeddingIDs []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.retriever.RemoveEmbeddings(ctx, embeddingIDs); err != nil {
		log.Printf("WARN: failed to roll back embeddings of document %s: %v", documentID, err)
	}
	if _, err := s.store.DeleteDocument(ctx, documentID); err != nil {
		log.Printf("WARN: failed to roll back document %s: %v", documentID, err)
	}
}

func (s *Service) ListDocuments(ctx context.Context, sessionID string) ([]domain.Document, error) {
	return s.store.ListDocuments(ctx, sessionID)
}

func (s *Service) GetDocumentChunks(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return s.store.GetDocumentChunks(ctx, documentID)
}

// DeleteDocument removes the chunk vectors from the index, then the rows.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return domain.ErrDocumentNotFound
	}

	ids, err := s.embeddingIDs(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.retriever.RemoveEmbeddings(ctx, ids); err != nil {
		return err
	}

	if _, err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// releaseSessionDocuments removes the vectors of every document the session
// owns. The rows go with the session itself.
func (s *Service) releaseSessionDocuments(ctx context.Context, sessionID string) error {
	docs, err := s.store.ListDocuments(ctx, sessionID)
	if err != nil {
		return err
	}
	var ids []string
	for _, doc := range docs {
		docIDs, err := s.embeddingIDs(ctx, doc.DocumentID)
		if err != nil {
			return err
		}
		ids = append(ids, docIDs...)
	}
	return s.retriever.RemoveEmbeddings(ctx, ids)
}

func (s *Service) embeddingIDs(ctx context.Context, documentID string) ([]string, error) {
	chunks, err := s.store.GetDocumentChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range chunks {
		if c.EmbeddingID != "" {
			ids = append(ids, c.EmbeddingID)
		}
	}
	return ids, nil
}

// ReindexDocuments indexes every stored document again and records the new
// embedding ids. It returns the number of chunks indexed. Used at startup
// when the index does not outlive the process.
func (s *Service) ReindexDocuments(ctx context.Context) (int, error) {
	docs, err := s.store.ListDocuments(ctx, "")
	if err != nil {
		return 0, err
	}

	n := 0
	for i := range docs {
		doc := &docs[i]
		chunks, err := s.store.GetDocumentChunks(ctx, doc.DocumentID)
		if err != nil {
			return n, err
		}
		if len(chunks) == 0 {
			continue
		}
		ids, err := s.retriever.IndexChunks(ctx, doc, chunks)
		if err != nil {
			return n, fmt.Errorf("failed to reindex document %s: %w", doc.DocumentID, err)
		}
		byChunk := make(map[string]string, len(chunks))
		for j, c := range chunks {
			byChunk[c.ChunkID] = ids[j]
		}
		if err := s.store.SetChunkEmbeddingIDs(ctx, byChunk); err != nil {
			if rmErr := s.retriever.RemoveEmbeddings(ctx, ids); rmErr != nil {
				log.Printf("WARN: failed to drop embeddings of document %s: %v", doc.DocumentID, rmErr)
			}
			return n, fmt.Errorf("failed to record embedding ids of document %s: %w", doc.DocumentID, err)
		}
		n += len(chunks)
	}
	return n, nil
}
