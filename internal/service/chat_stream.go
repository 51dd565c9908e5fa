package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/internal/metrics"
	"github.com/xiaot623/gogo/chatbot/internal/session"
)

// EmitFunc receives stream events in order. A non-nil error means the caller
// is gone and the stream stops.
type EmitFunc func(domain.StreamEvent) error

// errStopStream ends the backend stream after a terminal frame.
var errStopStream = errors.New("stop stream")

// emitError marks a failure to deliver an event to the caller.
type emitError struct{ err error }

func (e *emitError) Error() string { return "emit failed: " + e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

// ProcessChatStream runs one streaming chat turn.
//
// It returns domain.ErrSessionNotFound or domain.ErrRequestBlocked without
// emitting anything and without writing to the store. Otherwise it emits
// start, any number of token events and exactly one terminal event (complete
// or error), and returns nil. The assistant reply is stored only when the
// backend finished successfully; its id is the one announced in start.
func (s *Service) ProcessChatStream(ctx context.Context, req *domain.ChatRequest, emit EmitFunc) error {
	ctx, span := tracer.Start(ctx, "chat.stream",
		trace.WithAttributes(
			attribute.String("session.id", req.SessionID),
			attribute.Bool("chat.use_rag", req.UseRAG),
		),
	)
	defer span.End()

	t, err := s.beginTurn(ctx, req, metrics.ModeStream)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer t.unlock()
	defer s.metrics.StreamStarted()()

	replyID := session.NewMessageID()
	if err := emit(domain.StreamEvent{
		Type:      domain.StreamEventStart,
		SessionID: t.sessionID,
		MessageID: replyID,
	}); err != nil {
		log.Printf("WARN: stream client for session %s went away before start: %v", t.sessionID, err)
		s.metrics.RecordChat(metrics.ModeStream, metrics.OutcomeError)
		return nil
	}

	var (
		buf       strings.Builder
		tokens    int
		usage     *domain.TokenUsage
		completed bool
		failure   string
	)
	started := time.Now()
	streamErr := s.llmClient.StreamChat(ctx, t.backendRequest(), func(ev domain.BackendEvent) error {
		switch ev.Type {
		case domain.BackendEventChunk:
			buf.WriteString(ev.Content)
			tokens++
			if err := emit(domain.StreamEvent{
				Type:       domain.StreamEventToken,
				Content:    ev.Content,
				TokenCount: tokens,
			}); err != nil {
				return &emitError{err: err}
			}
		case domain.BackendEventComplete:
			if ev.FullResponse != "" && ev.FullResponse != buf.String() {
				buf.Reset()
				buf.WriteString(ev.FullResponse)
			}
			usage = ev.Usage
			completed = true
			return errStopStream
		case domain.BackendEventError:
			failure = ev.Message
			if failure == "" {
				failure = "generation failed"
			}
			return errStopStream
		}
		return nil
	})
	elapsed := time.Since(started)
	s.metrics.ObserveBackend(metrics.ModeStream, elapsed)
	s.metrics.AddStreamTokens(tokens)

	var ee *emitError
	switch {
	case failure != "":
	case errors.As(streamErr, &ee):
		failure = "stream interrupted"
		log.Printf("WARN: stream client for session %s went away: %v", t.sessionID, ee.err)
	case streamErr != nil && !errors.Is(streamErr, errStopStream):
		failure = describeFailure(streamErr)
		log.Printf("ERROR: generation stream failed for session %s: %v", t.sessionID, streamErr)
	case !completed:
		failure = "generation ended unexpectedly"
	case ctx.Err() != nil:
		failure = describeFailure(ctx.Err())
	}
	if failure != "" {
		span.SetAttributes(attribute.String("chat.failure", failure))
		s.finishWithError(t.sessionID, emit, failure)
		return nil
	}

	content := buf.String()
	var replyMessageID string
	if content != "" {
		if usage == nil {
			usage = &domain.TokenUsage{CompletionTokens: tokens, TotalTokens: tokens}
		}
		usage.DurationMs = elapsed.Milliseconds()
		// Detached from the request so a disconnect after completion still stores the reply.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		_, err := s.sessions.AppendMessageWithID(saveCtx, replyID, t.sessionID, domain.RoleAssistant, content, usage)
		cancel()
		if err != nil {
			log.Printf("ERROR: failed to save assistant message for session %s: %v", t.sessionID, err)
			s.finishWithError(t.sessionID, emit, "failed to save response")
			return nil
		}
		replyMessageID = replyID
	}

	complete := domain.StreamEvent{
		Type:        domain.StreamEventComplete,
		SessionID:   t.sessionID,
		MessageID:   replyMessageID,
		TotalTokens: &tokens,
	}
	if t.useRAG {
		complete.RAGContext = t.ragItems
	}
	if err := emit(complete); err != nil {
		log.Printf("WARN: stream client for session %s went away before complete: %v", t.sessionID, err)
	}
	s.metrics.RecordChat(metrics.ModeStream, metrics.OutcomeSuccess)
	return nil
}

// finishWithError emits the terminal error event. Delivery is best effort.
func (s *Service) finishWithError(sessionID string, emit EmitFunc, message string) {
	s.metrics.RecordChat(metrics.ModeStream, metrics.OutcomeError)
	if err := emit(domain.StreamEvent{
		Type:      domain.StreamEventError,
		SessionID: sessionID,
		Message:   message,
	}); err != nil {
		log.Printf("WARN: failed to deliver error event for session %s: %v", sessionID, err)
	}
}

// describeFailure turns a generation error into a client-facing message.
func describeFailure(err error) string {
	var be *domain.BackendError
	switch {
	case errors.As(err, &be):
		return be.Message
	case errors.Is(err, context.DeadlineExceeded):
		return "generation timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "generation backend unavailable"
	}
	return "chat processing failed"
}
