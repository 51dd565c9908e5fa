// Package store defines the storage interface and its SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	ListSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]string, error)

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// Document operations
	CreateDocument(ctx context.Context, doc *domain.Document, chunks []domain.DocumentChunk) error
	GetDocument(ctx context.Context, documentID string) (*domain.Document, error)
	ListDocuments(ctx context.Context, sessionID string) ([]domain.Document, error)
	GetDocumentChunks(ctx context.Context, documentID string) ([]domain.DocumentChunk, error)
	SetChunkEmbeddingIDs(ctx context.Context, embeddingIDs map[string]string) error
	DeleteDocument(ctx context.Context, documentID string) (bool, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
