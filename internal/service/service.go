// Package service implements the chat orchestration use cases.
package service

import (
	"go.opentelemetry.io/otel"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/config"
	"github.com/xiaot623/gogo/chatbot/internal/lock"
	"github.com/xiaot623/gogo/chatbot/internal/metrics"
	"github.com/xiaot623/gogo/chatbot/internal/repository"
	"github.com/xiaot623/gogo/chatbot/internal/retrieval"
	"github.com/xiaot623/gogo/chatbot/internal/session"
	"github.com/xiaot623/gogo/chatbot/policy"
)

var tracer = otel.Tracer("github.com/xiaot623/gogo/chatbot/internal/service")

type Service struct {
	store        store.Store
	sessions     *session.Manager
	llmClient    llm.Client
	retriever    *retrieval.Engine
	locker       lock.Locker
	config       *config.Config
	policyEngine *policy.Engine
	metrics      *metrics.Metrics
}

// New wires the service. policyEngine and m may be nil; a nil locker
// falls back to an in-process one. Deleting or expiring a session through
// sessions also removes the vectors of its documents.
func New(store store.Store, sessions *session.Manager, llmClient llm.Client, retriever *retrieval.Engine, locker lock.Locker, cfg *config.Config, policyEngine *policy.Engine, m *metrics.Metrics) *Service {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	s := &Service{
		store:        store,
		sessions:     sessions,
		llmClient:    llmClient,
		retriever:    retriever,
		locker:       locker,
		config:       cfg,
		policyEngine: policyEngine,
		metrics:      m,
	}
	sessions.OnDelete(s.releaseSessionDocuments)
	return s
}
