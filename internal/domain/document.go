package domain

import "time"

// UnknownDocumentTitle is used when an indexed chunk carries no title.
const UnknownDocumentTitle = "Unknown Document"

// Document is an ingested text, split into chunks for retrieval.
type Document struct {
	DocumentID string    `json:"document_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Title      string    `json:"title"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentChunk is the unit indexed for similarity search.
// EmbeddingID is empty until the chunk has been written to the index.
type DocumentChunk struct {
	ChunkID     string    `json:"chunk_id"`
	DocumentID  string    `json:"document_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	EmbeddingID string    `json:"embedding_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RetrievedContextItem describes one passage used to ground a reply.
type RetrievedContextItem struct {
	DocumentID      string  `json:"document_id"`
	DocumentTitle   string  `json:"document_title"`
	ChunkContent    string  `json:"chunk_content"`
	SimilarityScore float64 `json:"similarity_score"`
}
