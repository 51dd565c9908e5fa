package service

import (
	"context"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

func (s *Service) CreateSession(ctx context.Context, metadata map[string]interface{}) (*domain.Session, error) {
	return s.sessions.CreateSession(ctx, metadata)
}

// GetSession returns domain.ErrSessionNotFound for an unknown id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// DeleteSession waits for any chat turn in progress on the session.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	deleted, err := s.sessions.DeleteSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrSessionNotFound
	}
	return nil
}

// GetMessages returns up to limit messages, newest first.
func (s *Service) GetMessages(ctx context.Context, sessionID string, limit int) (*domain.MessagesHistoryResponse, error) {
	msgs, ok, err := s.sessions.GetHistory(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &domain.MessagesHistoryResponse{
		SessionID:  sessionID,
		Messages:   msgs,
		TotalCount: len(msgs),
	}, nil
}
