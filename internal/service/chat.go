package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/metrics"
)

// ProcessChatRequest runs one blocking chat turn and returns the stored
// assistant reply. The user message is stored before the backend is called;
// the reply only when the backend succeeds.
func (s *Service) ProcessChatRequest(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "chat.complete",
		trace.WithAttributes(
			attribute.String("session.id", req.SessionID),
			attribute.Bool("chat.use_rag", req.UseRAG),
		),
	)
	defer span.End()

	t, err := s.beginTurn(ctx, req, metrics.ModeBlocking)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer t.unlock()

	started := time.Now()
	resp, err := s.llmClient.Complete(ctx, t.backendRequest())
	elapsed := time.Since(started)
	s.metrics.ObserveBackend(metrics.ModeBlocking, elapsed)
	if err != nil {
		span.RecordError(err)
		s.metrics.RecordChat(metrics.ModeBlocking, metrics.OutcomeError)
		log.Printf("ERROR: generation failed for session %s: %v", t.sessionID, err)
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	usage := resp.Usage
	if usage == nil {
		usage = &domain.TokenUsage{}
	}
	usage.DurationMs = elapsed.Milliseconds()

	msg, err := s.sessions.AppendMessage(ctx, t.sessionID, domain.RoleAssistant, resp.Response, usage)
	if err != nil {
		s.metrics.RecordChat(metrics.ModeBlocking, metrics.OutcomeError)
		return nil, err
	}
	s.metrics.RecordChat(metrics.ModeBlocking, metrics.OutcomeSuccess)

	out := &domain.ChatResponse{
		MessageID:  msg.MessageID,
		Role:       msg.Role,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
		TokenUsage: msg.TokenUsage,
	}
	if t.useRAG {
		out.RAGContext = t.ragItems
	}
	return out, nil
}
