package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatbot/internal/adapter/embedding"
	"github.com/xiaot623/gogo/chatbot/internal/adapter/llm"
	"github.com/xiaot623/gogo/chatbot/internal/adapter/vectorindex"
	"github.com/xiaot623/gogo/chatbot/internal/config"
	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/lock"
	"github.com/xiaot623/gogo/chatbot/internal/repository"
	"github.com/xiaot623/gogo/chatbot/internal/retrieval"
	"github.com/xiaot623/gogo/chatbot/internal/session"
	"github.com/xiaot623/gogo/chatbot/policy"
	"github.com/xiaot623/gogo/chatbot/tests/helpers"
)

// scriptedClient replays a fixed list of backend events.
type scriptedClient struct {
	events      []domain.BackendEvent
	streamErr   error
	response    *llm.ChatResponse
	completeErr error
	onStream    func()

	mu       sync.Mutex
	requests []*llm.ChatRequest
}

func (c *scriptedClient) record(req *llm.ChatRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
}

func (c *scriptedClient) lastRequest() *llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}

func (c *scriptedClient) Health(ctx context.Context) bool { return true }

func (c *scriptedClient) Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.record(req)
	if c.completeErr != nil {
		return nil, c.completeErr
	}
	return c.response, nil
}

func (c *scriptedClient) StreamChat(ctx context.Context, req *llm.ChatRequest, cb llm.StreamCallback) error {
	c.record(req)
	if c.onStream != nil {
		c.onStream()
	}
	for _, ev := range c.events {
		if err := cb(ev); err != nil {
			return err
		}
	}
	return c.streamErr
}

type testEnv struct {
	svc       *Service
	sessions  *session.Manager
	retriever *retrieval.Engine
	client    *scriptedClient
}

func newTestEnv(t *testing.T, client *scriptedClient, policyEngine *policy.Engine) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, client, policyEngine, helpers.NewTestSQLiteStore(t))
}

func newTestEnvWithStore(t *testing.T, client *scriptedClient, policyEngine *policy.Engine, db store.Store) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.ChunkSize = 60
	cfg.ChunkOverlap = 10
	cfg.SessionTimeout = time.Hour

	sessions := session.NewManager(db, cfg.MaxContextMessages)
	retriever := retrieval.NewEngine(embedding.NewHashClient(128), vectorindex.NewMemoryIndex(), retrieval.Options{
		DefaultTopK:        cfg.DefaultTopK,
		MinSimilarityScore: 0.5,
	}, nil)
	svc := New(db, sessions, client, retriever, lock.NewLocalLocker(), cfg, policyEngine, nil)
	return &testEnv{svc: svc, sessions: sessions, retriever: retriever, client: client}
}

func (e *testEnv) newSession(t *testing.T) string {
	t.Helper()
	sess, err := e.svc.CreateSession(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	return sess.SessionID
}

func (e *testEnv) history(t *testing.T, sessionID string) []domain.Message {
	t.Helper()
	msgs, ok, err := e.sessions.GetHistory(context.Background(), sessionID, 0)
	require.NoError(t, err)
	require.True(t, ok)
	// chronological for readability
	out := make([]domain.Message, len(msgs))
	for i := range msgs {
		out[len(msgs)-1-i] = msgs[i]
	}
	return out
}

func collect(events *[]domain.StreamEvent) EmitFunc {
	return func(ev domain.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func chunk(s string) domain.BackendEvent {
	return domain.BackendEvent{Type: domain.BackendEventChunk, Content: s}
}

func eventTypes(events []domain.StreamEvent) []domain.StreamEventType {
	out := make([]domain.StreamEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestProcessChatStreamUnknownSession(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{events: []domain.BackendEvent{chunk("Hi")}}, nil)

	var events []domain.StreamEvent
	err := env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{SessionID: "sess_missing", Message: "hello"}, collect(&events))
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Empty(t, events)
	assert.Nil(t, env.client.lastRequest())

	_, ok, err := env.sessions.GetHistory(context.Background(), "sess_missing", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessChatStreamSuccess(t *testing.T) {
	client := &scriptedClient{events: []domain.BackendEvent{
		chunk("Hi"),
		chunk(" there"),
		{Type: domain.BackendEventComplete, FullResponse: "Hi there"},
	}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	err := env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{SessionID: sessionID, Message: "hello"}, collect(&events))
	require.NoError(t, err)

	require.Equal(t, []domain.StreamEventType{
		domain.StreamEventStart, domain.StreamEventToken, domain.StreamEventToken, domain.StreamEventComplete,
	}, eventTypes(events))
	assert.Equal(t, "Hi", events[1].Content)
	assert.Equal(t, 1, events[1].TokenCount)
	assert.Equal(t, " there", events[2].Content)
	assert.Equal(t, 2, events[2].TokenCount)
	require.NotNil(t, events[3].TotalTokens)
	assert.Equal(t, 2, *events[3].TotalTokens)
	assert.Empty(t, events[3].RAGContext)
	assert.NotEmpty(t, events[0].MessageID)
	assert.Equal(t, events[0].MessageID, events[3].MessageID)

	history := env.history(t, sessionID)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hi there", history[1].Content)
	assert.Equal(t, events[0].MessageID, history[1].MessageID)
	require.NotNil(t, history[1].TokenUsage)
	assert.Equal(t, 2, history[1].TokenUsage.TotalTokens)

	req := client.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[len(req.Messages)-1].Content)
	assert.Empty(t, req.Context)
	assert.Equal(t, 256, req.MaxNewTokens)
	assert.True(t, req.DoSample)
}

func TestProcessChatStreamBackendErrorFrame(t *testing.T) {
	client := &scriptedClient{events: []domain.BackendEvent{
		chunk("Hi"),
		{Type: domain.BackendEventError, Message: "oom"},
		chunk("ignored"),
	}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	err := env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{SessionID: sessionID, Message: "hello"}, collect(&events))
	require.NoError(t, err)

	require.Equal(t, []domain.StreamEventType{
		domain.StreamEventStart, domain.StreamEventToken, domain.StreamEventError,
	}, eventTypes(events))
	assert.Equal(t, "oom", events[2].Message)

	history := env.history(t, sessionID)
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleUser, history[0].Role)
}

func TestProcessChatStreamTransportFailure(t *testing.T) {
	client := &scriptedClient{streamErr: fmt.Errorf("%w: connection refused", domain.ErrBackendUnavailable)}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	require.NoError(t, env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{SessionID: sessionID, Message: "hello"}, collect(&events)))

	require.Equal(t, []domain.StreamEventType{domain.StreamEventStart, domain.StreamEventError}, eventTypes(events))
	assert.Equal(t, "generation backend unavailable", events[1].Message)
	assert.Len(t, env.history(t, sessionID), 1)
}

func TestDescribeFailure(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&domain.BackendError{StatusCode: 500, Message: "oom"}, "oom"},
		{fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, context.DeadlineExceeded), "generation timed out"},
		{context.Canceled, "request cancelled"},
		{fmt.Errorf("%w: connection refused", domain.ErrBackendUnavailable), "generation backend unavailable"},
		{errors.New("boom"), "chat processing failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeFailure(tt.err), "error %v", tt.err)
	}
}

func TestProcessChatStreamEndsWithoutComplete(t *testing.T) {
	client := &scriptedClient{events: []domain.BackendEvent{chunk("Hi")}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	require.NoError(t, env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{SessionID: sessionID, Message: "hello"}, collect(&events)))

	last := events[len(events)-1]
	assert.Equal(t, domain.StreamEventError, last.Type)
	assert.Equal(t, "generation ended unexpectedly", last.Message)
	assert.Len(t, env.history(t, sessionID), 1)
}

func TestProcessChatStreamReconcilesFullResponse(t *testing.T) {
	client := &scriptedClient{events: []domain.BackendEvent{
		chunk("Hel"),
		{Type: domain.BackendEventComplete, FullResponse: "Hello!"},
	}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	require.NoError(t, env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{SessionID: sessionID, Message: "hello"}, collect(&events)))

	history := env.history(t, sessionID)
	require.Len(t, history, 2)
	assert.Equal(t, "Hello!", history[1].Content)
}

func TestProcessChatStreamEmptyReplyNotPersisted(t *testing.T) {
	client := &scriptedClient{events: []domain.BackendEvent{{Type: domain.BackendEventComplete}}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	require.NoError(t, env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{SessionID: sessionID, Message: "hello"}, collect(&events)))

	require.Equal(t, []domain.StreamEventType{domain.StreamEventStart, domain.StreamEventComplete}, eventTypes(events))
	assert.Empty(t, events[1].MessageID)
	assert.Len(t, env.history(t, sessionID), 1)

	complete, err := json.Marshal(events[1])
	require.NoError(t, err)
	assert.Contains(t, string(complete), `"total_tokens":0`)
	start, err := json.Marshal(events[0])
	require.NoError(t, err)
	assert.NotContains(t, string(start), "total_tokens")
}

func TestProcessChatStreamCallerGone(t *testing.T) {
	client := &scriptedClient{events: []domain.BackendEvent{
		chunk("Hi"),
		chunk(" there"),
		{Type: domain.BackendEventComplete, FullResponse: "Hi there"},
	}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	gone := errors.New("client disconnected")
	emit := func(ev domain.StreamEvent) error {
		events = append(events, ev)
		if ev.Type == domain.StreamEventToken {
			return gone
		}
		return nil
	}
	require.NoError(t, env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{SessionID: sessionID, Message: "hello"}, emit))

	assert.Equal(t, domain.StreamEventError, events[len(events)-1].Type)
	assert.Len(t, env.history(t, sessionID), 1, "partial reply must not be stored")
}

func TestProcessChatStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{
		events:    []domain.BackendEvent{chunk("Hi")},
		streamErr: context.Canceled,
		onStream:  cancel,
	}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	require.NoError(t, env.svc.ProcessChatStream(ctx, &domain.ChatRequest{SessionID: sessionID, Message: "hello"}, collect(&events)))

	last := events[len(events)-1]
	assert.Equal(t, domain.StreamEventError, last.Type)
	assert.Equal(t, "request cancelled", last.Message)
	assert.Len(t, env.history(t, sessionID), 1)
}

func TestProcessChatStreamWithRAG(t *testing.T) {
	client := &scriptedClient{events: []domain.BackendEvent{
		chunk("Use channels."),
		{Type: domain.BackendEventComplete},
	}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)
	ctx := context.Background()

	_, err := env.svc.CreateDocument(ctx, &domain.CreateDocumentRequest{
		SessionID: sessionID,
		Title:     "Go Guide",
		Content:   "goroutines communicate over channels",
	})
	require.NoError(t, err)

	topK := 2
	var events []domain.StreamEvent
	require.NoError(t, env.svc.ProcessChatStream(ctx, &domain.ChatRequest{
		SessionID: sessionID,
		Message:   "goroutines communicate over channels",
		UseRAG:    true,
		TopK:      &topK,
	}, collect(&events)))

	complete := events[len(events)-1]
	require.Equal(t, domain.StreamEventComplete, complete.Type)
	require.Len(t, complete.RAGContext, 1)
	assert.Equal(t, "Go Guide", complete.RAGContext[0].DocumentTitle)
	assert.InDelta(t, 1.0, complete.RAGContext[0].SimilarityScore, 1e-6)

	req := client.lastRequest()
	require.Len(t, req.Context, 1)
	assert.True(t, strings.HasPrefix(req.Context[0], "[Go Guide]\n"))
}

func TestProcessChatStreamBlockedByPolicy(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	client := &scriptedClient{events: []domain.BackendEvent{chunk("Hi")}}
	env := newTestEnv(t, client, engine)
	sessionID := env.newSession(t)

	var events []domain.StreamEvent
	err = env.svc.ProcessChatStream(context.Background(), &domain.ChatRequest{
		SessionID: sessionID,
		Message:   strings.Repeat("x", 40000),
	}, collect(&events))
	assert.ErrorIs(t, err, domain.ErrRequestBlocked)
	assert.Empty(t, events)
	assert.Empty(t, env.history(t, sessionID))
}

func TestPolicyNoRAGDisablesRetrieval(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	client := &scriptedClient{events: []domain.BackendEvent{chunk("ok"), {Type: domain.BackendEventComplete}}}
	env := newTestEnv(t, client, engine)
	sessionID := env.newSession(t)
	ctx := context.Background()

	_, err = env.svc.CreateDocument(ctx, &domain.CreateDocumentRequest{SessionID: sessionID, Title: "Doc", Content: "alpha beta gamma"})
	require.NoError(t, err)

	topK := 50
	var events []domain.StreamEvent
	require.NoError(t, env.svc.ProcessChatStream(ctx, &domain.ChatRequest{
		SessionID: sessionID, Message: "alpha beta gamma", UseRAG: true, TopK: &topK,
	}, collect(&events)))

	assert.Empty(t, client.lastRequest().Context)
	assert.Empty(t, events[len(events)-1].RAGContext)
}

// blockingClient records how many streams overlap.
type blockingClient struct {
	scriptedClient
	active, maxActive atomic.Int32
}

func (c *blockingClient) StreamChat(ctx context.Context, req *llm.ChatRequest, cb llm.StreamCallback) error {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		m := c.maxActive.Load()
		if n <= m || c.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	if err := cb(chunk("ok")); err != nil {
		return err
	}
	return cb(domain.BackendEvent{Type: domain.BackendEventComplete})
}

func TestProcessChatStreamSerializesPerSession(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	cfg := config.Default()
	sessions := session.NewManager(db, cfg.MaxContextMessages)
	client := &blockingClient{}
	svc := New(db, sessions, client, nil, nil, cfg, nil, nil)

	sess, err := svc.CreateSession(context.Background(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var events []domain.StreamEvent
			err := svc.ProcessChatStream(context.Background(), &domain.ChatRequest{
				SessionID: sess.SessionID,
				Message:   fmt.Sprintf("m%d", i),
			}, collect(&events))
			if err != nil {
				t.Errorf("stream %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, client.maxActive.Load())

	msgs, _, err := sessions.GetHistory(context.Background(), sess.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 8)
	// Each user message is immediately followed by its reply.
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, domain.RoleAssistant, msgs[i].Role)
		assert.Equal(t, domain.RoleUser, msgs[i+1].Role)
	}
}

func TestProcessChatRequest(t *testing.T) {
	client := &scriptedClient{response: &llm.ChatResponse{
		Response: "Hi there",
		Usage:    &domain.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	temp := 0.2
	resp, err := env.svc.ProcessChatRequest(context.Background(), &domain.ChatRequest{
		SessionID:   sessionID,
		Message:     "hello",
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, resp.Role)
	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, 5, resp.TokenUsage.TotalTokens)
	assert.InDelta(t, 0.2, client.lastRequest().Temperature, 1e-9)

	history := env.history(t, sessionID)
	require.Len(t, history, 2)
	assert.Equal(t, resp.MessageID, history[1].MessageID)
}

func TestProcessChatRequestBackendFailure(t *testing.T) {
	client := &scriptedClient{completeErr: &domain.BackendError{StatusCode: 500, Message: "boom"}}
	env := newTestEnv(t, client, nil)
	sessionID := env.newSession(t)

	_, err := env.svc.ProcessChatRequest(context.Background(), &domain.ChatRequest{SessionID: sessionID, Message: "hello"})
	require.Error(t, err)
	assert.True(t, domain.IsBackendFailure(err))

	history := env.history(t, sessionID)
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleUser, history[0].Role)
}

func TestProcessChatRequestUnknownSession(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	_, err := env.svc.ProcessChatRequest(context.Background(), &domain.ChatRequest{SessionID: "sess_missing", Message: "hello"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Nil(t, env.client.lastRequest())
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()

	_, err := env.svc.CreateDocument(ctx, &domain.CreateDocumentRequest{SessionID: "sess_missing", Title: "x", Content: "y"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	content := strings.Repeat("Channels connect goroutines. ", 8)
	sessionID := env.newSession(t)
	created, err := env.svc.CreateDocument(ctx, &domain.CreateDocumentRequest{SessionID: sessionID, Title: "Handbook", Content: content})
	require.NoError(t, err)
	assert.Greater(t, created.ChunksCount, 1)
	assert.Len(t, created.EmbeddingIDs, created.ChunksCount)

	chunks, err := env.svc.GetDocumentChunks(ctx, created.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, created.ChunksCount)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, created.EmbeddingIDs[i], c.EmbeddingID)
	}

	docs, err := env.svc.ListDocuments(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	n, err := env.retriever.IndexedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ChunksCount, n)

	require.NoError(t, env.svc.DeleteDocument(ctx, created.DocumentID))
	n, err = env.retriever.IndexedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.ErrorIs(t, env.svc.DeleteDocument(ctx, created.DocumentID), domain.ErrDocumentNotFound)
	_, err = env.svc.GetDocumentChunks(ctx, created.DocumentID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

// failingEmbeddingIDsStore fails to record embedding ids after the document
// rows are written.
type failingEmbeddingIDsStore struct {
	store.Store
}

func (s *failingEmbeddingIDsStore) SetChunkEmbeddingIDs(ctx context.Context, embeddingIDs map[string]string) error {
	return errors.New("disk full")
}

func TestCreateDocumentRollsBackWhenEmbeddingIDsFail(t *testing.T) {
	db := &failingEmbeddingIDsStore{Store: helpers.NewTestSQLiteStore(t)}
	env := newTestEnvWithStore(t, &scriptedClient{}, nil, db)
	ctx := context.Background()
	sessionID := env.newSession(t)

	_, err := env.svc.CreateDocument(ctx, &domain.CreateDocumentRequest{
		SessionID: sessionID,
		Title:     "Handbook",
		Content:   strings.Repeat("Channels connect goroutines. ", 8),
	})
	require.Error(t, err)

	docs, err := env.svc.ListDocuments(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, docs)
	n, err := env.retriever.IndexedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "indexed vectors must be removed with the document")
}

func TestDeleteSessionRemovesDocuments(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()
	sessionID := env.newSession(t)
	otherID := env.newSession(t)

	for _, id := range []string{sessionID, otherID} {
		_, err := env.svc.CreateDocument(ctx, &domain.CreateDocumentRequest{SessionID: id, Title: "Notes", Content: "goroutines communicate over channels"})
		require.NoError(t, err)
	}

	require.NoError(t, env.svc.DeleteSession(ctx, sessionID))

	docs, err := env.svc.ListDocuments(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, docs)
	n, err := env.retriever.IndexedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the other session's vectors remain")

	docs, err = env.svc.ListDocuments(ctx, otherID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestReindexDocumentsRestoresRetrieval(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()
	first := newTestEnvWithStore(t, &scriptedClient{}, nil, db)
	sessionID := first.newSession(t)
	created, err := first.svc.CreateDocument(ctx, &domain.CreateDocumentRequest{SessionID: sessionID, Title: "Go Guide", Content: "goroutines communicate over channels"})
	require.NoError(t, err)

	// same database, fresh index
	restarted := newTestEnvWithStore(t, &scriptedClient{}, nil, db)
	_, items, err := restarted.retriever.PrepareContext(ctx, "goroutines communicate over channels", sessionID, 3)
	require.NoError(t, err)
	require.Empty(t, items)

	n, err := restarted.svc.ReindexDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ChunksCount, n)

	_, items, err = restarted.retriever.PrepareContext(ctx, "goroutines communicate over channels", sessionID, 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, created.DocumentID, items[0].DocumentID)

	require.NoError(t, restarted.svc.DeleteDocument(ctx, created.DocumentID))
	count, err := restarted.retriever.IndexedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "deletion uses the rebuilt embedding ids")
}

func TestSessionWrappers(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()

	_, err := env.svc.GetSession(ctx, "sess_missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = env.svc.GetMessages(ctx, "sess_missing", 10)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, env.svc.DeleteSession(ctx, "sess_missing"), domain.ErrSessionNotFound)

	sessionID := env.newSession(t)
	resp, err := env.svc.GetMessages(ctx, sessionID, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.TotalCount)
	require.NoError(t, env.svc.DeleteSession(ctx, sessionID))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	h := env.svc.Health(context.Background())
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.DatabaseConnected)
	assert.True(t, h.LLMServerAvailable)
}

func TestSweepExpiredSessions(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()
	sessionID := env.newSession(t)

	env.svc.config.SessionTimeout = -time.Minute // everything is stale
	env.svc.sweepExpiredSessions(ctx)

	_, err := env.svc.GetSession(ctx, sessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSweepExpiredSessionsRemovesDocuments(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	ctx := context.Background()
	sessionID := env.newSession(t)
	_, err := env.svc.CreateDocument(ctx, &domain.CreateDocumentRequest{SessionID: sessionID, Title: "Notes", Content: "goroutines communicate over channels"})
	require.NoError(t, err)

	env.svc.config.SessionTimeout = -time.Minute
	env.svc.sweepExpiredSessions(ctx)

	docs, err := env.svc.ListDocuments(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, docs)
	n, err := env.retriever.IndexedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunSessionExpiryRejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{}, nil)
	env.svc.config.SessionCleanupSchedule = "not a schedule"
	assert.Error(t, env.svc.RunSessionExpiry(context.Background()))
}
