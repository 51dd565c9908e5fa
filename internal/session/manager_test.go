package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatbot/internal/domain"
	"github.com/xiaot623/gogo/chatbot/tests/helpers"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T, max int) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(helpers.NewTestSQLiteStore(t), max)
	m.now = clock.now
	return m, clock
}

func TestCreateAndGetSessionTouches(t *testing.T) {
	m, clock := newTestManager(t, 10)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^sess_[0-9a-f-]{36}$`, sess.SessionID)
	assert.NotNil(t, sess.Metadata)
	assert.Equal(t, sess.CreatedAt, sess.LastAccessed)

	clock.advance(time.Minute)
	got, err := m.GetSession(ctx, sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LastAccessed.Equal(clock.t))
	assert.True(t, got.CreatedAt.Equal(sess.CreatedAt))

	missing, err := m.GetSession(ctx, "sess_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAppendMessageUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, 10)

	_, err := m.AppendMessage(context.Background(), "sess_missing", domain.RoleUser, "hi", nil)
	assert.True(t, errors.Is(err, domain.ErrSessionNotFound))
}

func TestGetHistoryDistinguishesMissingSession(t *testing.T) {
	m, clock := newTestManager(t, 10)
	ctx := context.Background()

	_, ok, err := m.GetHistory(ctx, "sess_missing", 50)
	require.NoError(t, err)
	assert.False(t, ok)

	sess, err := m.CreateSession(ctx, map[string]interface{}{"user": "u1"})
	require.NoError(t, err)
	msgs, ok, err := m.GetHistory(ctx, sess.SessionID, 50)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, msgs)

	for i := 0; i < 3; i++ {
		clock.advance(time.Second)
		_, err := m.AppendMessage(ctx, sess.SessionID, domain.RoleUser, fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}
	msgs, _, err = m.GetHistory(ctx, sess.SessionID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].Content)
	assert.Equal(t, "m1", msgs[1].Content)
}

func TestContextWindowBoundedAndChronological(t *testing.T) {
	m, clock := newTestManager(t, 4)
	ctx := context.Background()
	sess, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		clock.advance(time.Second)
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		_, err := m.AppendMessage(ctx, sess.SessionID, role, fmt.Sprintf("m%d", i), nil)
		require.NoError(t, err)
	}

	window, err := m.ContextWindow(ctx, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, window, 5)
	assert.Equal(t, domain.ContextMessage{Role: domain.RoleSystem, Content: SystemPreamble}, window[0])
	assert.Equal(t, []string{"m2", "m3", "m4", "m5"}, contents(window[1:]))
}

func TestContextWindowKeepsExistingSystemMessage(t *testing.T) {
	m, clock := newTestManager(t, 10)
	ctx := context.Background()
	sess, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)

	_, err = m.AppendMessage(ctx, sess.SessionID, domain.RoleSystem, "custom persona", nil)
	require.NoError(t, err)
	clock.advance(time.Second)
	_, err = m.AppendMessage(ctx, sess.SessionID, domain.RoleUser, "hello", nil)
	require.NoError(t, err)

	window, err := m.ContextWindow(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom persona", "hello"}, contents(window))
}

func TestContextWindowEmptySession(t *testing.T) {
	window := buildWindow(nil)
	require.Len(t, window, 1)
	assert.Equal(t, domain.RoleSystem, window[0].Role)
}

func TestDeleteSession(t *testing.T) {
	m, _ := newTestManager(t, 10)
	ctx := context.Background()
	sess, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)
	_, err = m.AppendMessage(ctx, sess.SessionID, domain.RoleUser, "hi", nil)
	require.NoError(t, err)

	deleted, err := m.DeleteSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err := m.GetHistory(ctx, sess.SessionID, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err = m.DeleteSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestExpireStaleSessions(t *testing.T) {
	m, clock := newTestManager(t, 10)
	ctx := context.Background()

	stale, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)
	clock.advance(20 * time.Hour)
	fresh, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)
	clock.advance(5 * time.Hour)

	n, err := m.ExpireStaleSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m.GetSession(ctx, stale.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = m.GetSession(ctx, fresh.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDeleteSessionRunsCleanupFirst(t *testing.T) {
	m, _ := newTestManager(t, 10)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)

	var released []string
	m.OnDelete(func(ctx context.Context, sessionID string) error {
		got, err := m.store.GetSession(ctx, sessionID)
		require.NoError(t, err)
		assert.NotNil(t, got, "cleanup must run while the session still exists")
		released = append(released, sessionID)
		return nil
	})

	deleted, err := m.DeleteSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{sess.SessionID}, released)
}

func TestDeleteSessionCleanupFailureKeepsSession(t *testing.T) {
	m, _ := newTestManager(t, 10)
	ctx := context.Background()

	sess, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)
	m.OnDelete(func(ctx context.Context, sessionID string) error {
		return errors.New("index offline")
	})

	_, err = m.DeleteSession(ctx, sess.SessionID)
	require.Error(t, err)
	got, err := m.GetSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestExpireStaleSessionsRunsCleanup(t *testing.T) {
	m, clock := newTestManager(t, 10)
	ctx := context.Background()

	stale, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)
	clock.advance(48 * time.Hour)
	_, err = m.CreateSession(ctx, nil)
	require.NoError(t, err)

	var released []string
	m.OnDelete(func(ctx context.Context, sessionID string) error {
		released = append(released, sessionID)
		return nil
	})

	n, err := m.ExpireStaleSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{stale.SessionID}, released)
}

func contents(window []domain.ContextMessage) []string {
	out := make([]string, len(window))
	for i, msg := range window {
		out[i] = msg.Content
	}
	return out
}
