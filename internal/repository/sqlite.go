package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			last_accessed DATETIME NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_accessed ON sessions(last_accessed)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			token_usage TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS documents (
			document_id TEXT PRIMARY KEY,
			session_id TEXT,
			title TEXT NOT NULL,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding_id TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (document_id) REFERENCES documents(document_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id, chunk_index)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("messages", "token_usage", "ALTER TABLE messages ADD COLUMN token_usage TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("document_chunks", "embedding_id", "ALTER TABLE document_chunks ADD COLUMN embedding_id TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, last_accessed, metadata) VALUES (?, ?, ?, ?)`,
		session.SessionID, session.CreatedAt.UTC(), session.LastAccessed.UTC(), string(metadata))
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var metadata sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, created_at, last_accessed, metadata FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.CreatedAt, &session.LastAccessed, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	session.Metadata = map[string]interface{}{}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode session metadata: %w", err)
		}
	}
	return &session, nil
}

// TouchSession sets last_accessed and reports whether the session exists.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_accessed = ? WHERE session_id = ?`,
		at.UTC(), sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteSession removes a session with its messages, documents and chunks
// in one transaction, children first.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM document_chunks WHERE document_id IN (SELECT document_id FROM documents WHERE session_id = ?)`,
			sessionID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// ListSessionsIdleSince returns the ids of sessions last accessed before cutoff.
func (s *SQLiteStore) ListSessionsIdleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE last_accessed < ? ORDER BY last_accessed`,
		cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateMessage appends a message. A missing session yields domain.ErrSessionNotFound.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	var usage sql.NullString
	if message.TokenUsage != nil {
		data, err := json.Marshal(message.TokenUsage)
		if err != nil {
			return fmt.Errorf("failed to marshal token usage: %w", err)
		}
		usage = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, created_at, token_usage) VALUES (?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, string(message.Role), message.Content, message.CreatedAt.UTC(), usage)
	if isForeignKeyViolation(err) {
		return domain.ErrSessionNotFound
	}
	return err
}

// GetRecentMessages returns up to limit messages of a session, newest first.
// A limit of zero or less returns the whole history.
func (s *SQLiteStore) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, session_id, role, content, created_at, token_usage FROM messages WHERE session_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		var usage sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt, &usage); err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		if usage.Valid && usage.String != "" {
			var tu domain.TokenUsage
			if err := json.Unmarshal([]byte(usage.String), &tu); err == nil {
				msg.TokenUsage = &tu
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CreateDocument stores a document and its chunks atomically.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *domain.Document, chunks []domain.DocumentChunk) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (document_id, session_id, title, chunk_count, created_at) VALUES (?, ?, ?, ?, ?)`,
			doc.DocumentID, nullString(doc.SessionID), doc.Title, len(chunks), doc.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		for _, c := range chunks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO document_chunks (chunk_id, document_id, chunk_index, content, embedding_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				c.ChunkID, doc.DocumentID, c.ChunkIndex, c.Content, nullString(c.EmbeddingID), c.CreatedAt.UTC()); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
			}
		}
		return nil
	})
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	var doc domain.Document
	var sessionID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, session_id, title, chunk_count, created_at FROM documents WHERE document_id = ?`,
		documentID).Scan(&doc.DocumentID, &sessionID, &doc.Title, &doc.ChunkCount, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc.SessionID = sessionID.String
	return &doc, nil
}

// ListDocuments lists documents, optionally restricted to one session.
func (s *SQLiteStore) ListDocuments(ctx context.Context, sessionID string) ([]domain.Document, error) {
	query := `SELECT document_id, session_id, title, chunk_count, created_at FROM documents`
	var args []interface{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		var doc domain.Document
		var sid sql.NullString
		if err := rows.Scan(&doc.DocumentID, &sid, &doc.Title, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.SessionID = sid.String
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetDocumentChunks returns the chunks of a document in position order.
func (s *SQLiteStore) GetDocumentChunks(ctx context.Context, documentID string) ([]domain.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, chunk_index, content, embedding_id, created_at FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []domain.DocumentChunk{}
	for rows.Next() {
		var c domain.DocumentChunk
		var embeddingID sql.NullString
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.Content, &embeddingID, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.EmbeddingID = embeddingID.String
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SetChunkEmbeddingIDs records the index handle of each chunk (chunk id -> embedding id).
func (s *SQLiteStore) SetChunkEmbeddingIDs(ctx context.Context, embeddingIDs map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for chunkID, embeddingID := range embeddingIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE document_chunks SET embedding_id = ? WHERE chunk_id = ?`,
				nullString(embeddingID), chunkID); err != nil {
				return fmt.Errorf("failed to update chunk %s: %w", chunkID, err)
			}
		}
		return nil
	})
}

// DeleteDocument removes a document and its chunks in one transaction.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentID)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
