package service

import (
	"context"
	"fmt"
	"log"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/metrics"
	"github.com/xiaot623/gogo/chatbot/policy"
)

// turn is the state shared by both chat modes once the inbound message is stored.
type turn struct {
	sessionID string
	window    []domain.ContextMessage
	passages  []string
	ragItems  []domain.RetrievedContextItem
	useRAG    bool
	params    domain.GenerationParams
	unlock    func()
}

// beginTurn validates the session, applies the admission policy, takes the
// session lock, persists the user message and assembles the context. On
// error nothing is held and, before the lock, nothing is written.
func (s *Service) beginTurn(ctx context.Context, req *domain.ChatRequest, mode string) (*turn, error) {
	sess, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		s.metrics.RecordChat(mode, metrics.OutcomeNotFound)
		return nil, domain.ErrSessionNotFound
	}

	useRAG, err := s.admit(ctx, req, mode)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}

	t, err := s.assemble(ctx, req, useRAG)
	if err != nil {
		unlock()
		return nil, err
	}
	t.unlock = unlock
	return t, nil
}

func (s *Service) admit(ctx context.Context, req *domain.ChatRequest, mode string) (bool, error) {
	if s.policyEngine == nil {
		return req.UseRAG, nil
	}
	decision, reason, err := s.policyEngine.Evaluate(ctx, policy.Input{
		SessionID: req.SessionID,
		Message:   req.Message,
		UseRAG:    req.UseRAG,
		TopK:      s.topK(req),
		MaxTokens: s.params(req).MaxNewTokens,
		Stream:    mode == metrics.ModeStream,
	})
	if err != nil {
		return false, err
	}
	switch decision {
	case policy.DecisionBlock:
		s.metrics.RecordChat(mode, metrics.OutcomeBlocked)
		if reason != "" {
			return false, fmt.Errorf("%w: %s", domain.ErrRequestBlocked, reason)
		}
		return false, domain.ErrRequestBlocked
	case policy.DecisionNoRAG:
		if req.UseRAG {
			log.Printf("WARN: retrieval disabled by policy for session %s: %s", req.SessionID, reason)
		}
		return false, nil
	}
	return req.UseRAG, nil
}

func (s *Service) assemble(ctx context.Context, req *domain.ChatRequest, useRAG bool) (*turn, error) {
	if _, err := s.sessions.AppendMessage(ctx, req.SessionID, domain.RoleUser, req.Message, nil); err != nil {
		return nil, err
	}

	window, err := s.sessions.ContextWindow(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		sessionID: req.SessionID,
		window:    window,
		useRAG:    useRAG,
		params:    s.params(req),
	}
	if useRAG && s.retriever != nil {
		passages, items, err := s.retriever.PrepareContext(ctx, req.Message, req.SessionID, s.topK(req))
		if err != nil {
			// Retrieval is best effort; generation proceeds ungrounded.
			log.Printf("WARN: retrieval failed for session %s: %v", req.SessionID, err)
		} else {
			t.passages = passages
			t.ragItems = items
		}
	}
	return t, nil
}

// params resolves the request's generation parameters against the defaults.
func (s *Service) params(req *domain.ChatRequest) domain.GenerationParams {
	p := domain.GenerationParams{
		MaxNewTokens: s.config.DefaultMaxTokens,
		Temperature:  s.config.DefaultTemperature,
		DoSample:     true,
	}
	if req.MaxNewTokens != nil {
		p.MaxNewTokens = *req.MaxNewTokens
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.DoSample != nil {
		p.DoSample = *req.DoSample
	}
	return p
}

// topK returns the requested result count; zero or negative selects the default.
func (s *Service) topK(req *domain.ChatRequest) int {
	if req.TopK == nil || *req.TopK <= 0 {
		return s.config.DefaultTopK
	}
	return *req.TopK
}

func (t *turn) backendRequest() *llm.ChatRequest {
	return &llm.ChatRequest{
		Messages:     t.window,
		MaxNewTokens: t.params.MaxNewTokens,
		Temperature:  t.params.Temperature,
		DoSample:     t.params.DoSample,
		Context:      t.passages,
	}
}
