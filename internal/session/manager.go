// Package session manages conversation sessions, their message history and
// the bounded context window fed to generation.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	store "github.com/xiaot623/gogo/chatbot/internal/repository"
)

// SystemPreamble is prepended to a context window that carries no system message.
const SystemPreamble = "You are a helpful AI assistant. Answer the user's questions accurately and concisely."

// DefaultMaxContextMessages bounds the context window when unset.
const DefaultMaxContextMessages = 10

// CleanupFunc releases what a session owns outside the store. It runs
// before the session's rows are deleted.
type CleanupFunc func(ctx context.Context, sessionID string) error

// Manager owns session and message persistence.
type Manager struct {
	store              store.Store
	maxContextMessages int
	now                func() time.Time
	cleanup            CleanupFunc
}

// NewManager creates a session manager.
func NewManager(s store.Store, maxContextMessages int) *Manager {
	if maxContextMessages <= 0 {
		maxContextMessages = DefaultMaxContextMessages
	}
	return &Manager{
		store:              s,
		maxContextMessages: maxContextMessages,
		now:                time.Now,
	}
}

// CreateSession creates a session with both timestamps set to now.
func (m *Manager) CreateSession(ctx context.Context, metadata map[string]interface{}) (*domain.Session, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	now := m.now().UTC()
	sess := &domain.Session{
		SessionID:    "sess_" + uuid.New().String(),
		CreatedAt:    now,
		LastAccessed: now,
		Metadata:     metadata,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// GetSession returns the session and refreshes its last access time.
// A missing session yields nil, nil.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}

	now := m.now().UTC()
	if _, err := m.store.TouchSession(ctx, sessionID, now); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	sess.LastAccessed = now
	return sess, nil
}

// OnDelete registers fn to run before every session deletion, expiry
// included. A cleanup error aborts the deletion.
func (m *Manager) OnDelete(fn CleanupFunc) {
	m.cleanup = fn
}

// DeleteSession removes the session with its messages and documents. It
// reports false when the session did not exist.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	if m.cleanup != nil {
		if err := m.cleanup(ctx, sessionID); err != nil {
			return false, fmt.Errorf("failed to release session %s: %w", sessionID, err)
		}
	}
	deleted, err := m.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return deleted, nil
}

// AppendMessage persists a message. An unknown session yields
// domain.ErrSessionNotFound.
func (m *Manager) AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string, usage *domain.TokenUsage) (*domain.Message, error) {
	return m.AppendMessageWithID(ctx, NewMessageID(), sessionID, role, content, usage)
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return "msg_" + uuid.New().String()
}

// AppendMessageWithID is AppendMessage with a caller-reserved identifier.
func (m *Manager) AppendMessageWithID(ctx context.Context, messageID, sessionID string, role domain.Role, content string, usage *domain.TokenUsage) (*domain.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	now := m.now().UTC()
	msg := &domain.Message{
		MessageID:  messageID,
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		CreatedAt:  now,
		TokenUsage: usage,
	}
	if err := m.store.CreateMessage(ctx, msg); err != nil {
		if err == domain.ErrSessionNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	if _, err := m.store.TouchSession(ctx, sessionID, now); err != nil {
		log.Printf("WARN: failed to touch session %s: %v", sessionID, err)
	}
	return msg, nil
}

// GetHistory returns up to limit messages, newest first. ok is false when the
// session does not exist.
func (m *Manager) GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Message, bool, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, false, nil
	}
	msgs, err := m.store.GetRecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, true, fmt.Errorf("failed to get messages: %w", err)
	}
	return msgs, true, nil
}

// ContextWindow returns the most recent messages in chronological order,
// bounded by the configured maximum. SystemPreamble is prepended when the
// window holds no system message.
func (m *Manager) ContextWindow(ctx context.Context, sessionID string) ([]domain.ContextMessage, error) {
	recent, err := m.store.GetRecentMessages(ctx, sessionID, m.maxContextMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to get context messages: %w", err)
	}
	return buildWindow(recent), nil
}

// buildWindow reverses newest-first messages and adds the preamble if needed.
func buildWindow(newestFirst []domain.Message) []domain.ContextMessage {
	window := make([]domain.ContextMessage, 0, len(newestFirst)+1)
	hasSystem := false
	for i := len(newestFirst) - 1; i >= 0; i-- {
		msg := newestFirst[i]
		if msg.Role == domain.RoleSystem {
			hasSystem = true
		}
		window = append(window, domain.ContextMessage{Role: msg.Role, Content: msg.Content})
	}
	if hasSystem {
		return window
	}
	return append([]domain.ContextMessage{{Role: domain.RoleSystem, Content: SystemPreamble}}, window...)
}

// ExpireStaleSessions deletes sessions idle for longer than maxAge, each
// through DeleteSession. A session that fails to delete is logged and left
// for the next sweep.
func (m *Manager) ExpireStaleSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := m.now().Add(-maxAge)
	ids, err := m.store.ListSessionsIdleSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}

	n := 0
	for _, id := range ids {
		deleted, err := m.DeleteSession(ctx, id)
		if err != nil {
			log.Printf("WARN: failed to expire session %s: %v", id, err)
			continue
		}
		if deleted {
			n++
		}
	}
	return n, nil
}
