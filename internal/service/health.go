package service

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
)

const healthCheckTimeout = 5 * time.Second

// Health checks the database and the generation backend.
func (s *Service) Health(ctx context.Context) *domain.HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	dbOK := s.store.Ping(ctx) == nil
	llmOK := s.llmClient.Health(ctx)

	status := "healthy"
	if !dbOK || !llmOK {
		status = "degraded"
	}
	return &domain.HealthResponse{
		Status:             status,
		Timestamp:          time.Now().UTC(),
		LLMServerAvailable: llmOK,
		DatabaseConnected:  dbOK,
	}
}
