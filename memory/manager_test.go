package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "nested", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManager_SessionLifecycle(t *testing.T) {
	m := newTestManager(t)

	session, err := m.StartSession("contoso.db", "gpt-4o")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.True(t, session.IsActive())

	restored, err := m.RestoreSession(session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, restored.ID)
	require.Equal(t, "contoso.db", restored.Dataset)
	require.Equal(t, "gpt-4o", restored.ModelUsed)
	require.WithinDuration(t, session.StartedAt, restored.StartedAt, time.Millisecond)

	require.NoError(t, m.EndSession(session.ID))
	ended, err := m.RestoreSession(session.ID)
	require.NoError(t, err)
	require.False(t, ended.IsActive())

	// 二回目の終了は何もしない
	require.NoError(t, m.EndSession(session.ID))
}

func TestManager_UnknownSession(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RestoreSession("missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, m.EndSession("missing"), ErrSessionNotFound)
}

func TestManager_Messages(t *testing.T) {
	m := newTestManager(t)
	session, err := m.StartSession("contoso.db", "gpt-4o")
	require.NoError(t, err)

	toolCalls := `[{"id":"call_1"}]`
	msgs := []*Message{
		{SessionID: session.ID, Role: "user", Content: "Revenue by region?"},
		{SessionID: session.ID, Role: "tool", Content: `{"row_count":4}`, ToolCalls: &toolCalls},
		{SessionID: session.ID, Role: "assistant", Content: "| region |", Category: "visualization", Artifacts: []string{"a.png", "b.csv"}},
	}
	for _, msg := range msgs {
		require.NoError(t, m.SaveMessage(msg))
		require.NotZero(t, msg.ID)
	}

	got, err := m.GetSessionMessages(session.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "user", got[0].Role)
	require.Nil(t, got[0].ToolCalls)
	require.Nil(t, got[0].Artifacts)
	require.Equal(t, toolCalls, *got[1].ToolCalls)
	require.Equal(t, "visualization", got[2].Category)
	require.Equal(t, []string{"a.png", "b.csv"}, got[2].Artifacts)

	require.Error(t, m.SaveMessage(&Message{Role: "user", Content: "x"}))
}

func TestManager_ListSessions(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := m.StartSession("contoso.db", "gpt-4o")
	require.NoError(t, err)
	require.NoError(t, m.SaveMessage(&Message{SessionID: first.ID, Role: "user", Content: "first question"}))
	require.NoError(t, m.SaveMessage(&Message{SessionID: first.ID, Role: "assistant", Content: "answer"}))
	require.NoError(t, m.SaveMessage(&Message{SessionID: first.ID, Role: "user", Content: "second question"}))

	second, err := m.StartSession("contoso.db", "gpt-4o")
	require.NoError(t, err)
	_, err = m.StartSession("other.db", "gpt-4o")
	require.NoError(t, err)

	summaries, err := m.ListSessions("contoso.db", 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, second.ID, summaries[0].ID)
	require.Equal(t, 0, summaries[0].MessageCount)
	require.Equal(t, first.ID, summaries[1].ID)
	require.Equal(t, 3, summaries[1].MessageCount)
	require.Equal(t, "second question", summaries[1].LastMessage)

	summaries, err = m.ListSessions("contoso.db", 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

func TestSession_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	s := &Session{StartedAt: start, EndedAt: &end}
	require.Equal(t, 90*time.Second, s.Duration())
}
