package sessions

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGenerateSessionID_Format(t *testing.T) {
	id := GenerateSessionID(time.Date(2026, 3, 5, 14, 30, 0, 123_000_000, time.UTC))
	assert.Len(t, id, 24)
	assert.True(t, IsValidSessionID(id))
	assert.Equal(t, "2026-03-05-1430-123-", id[:20])
}

func TestIsValidSessionID(t *testing.T) {
	assert.True(t, IsValidSessionID("2026-03-05-1430-123-ab12"))
	assert.True(t, IsValidSessionID("1234567890123456789"))
	assert.False(t, IsValidSessionID("too-short"))
	assert.False(t, IsValidSessionID("2026-03-05-1430-123-AB12")) // uppercase not allowed
	assert.False(t, IsValidSessionID("2026-03-05-1430-123-zz12")) // non-hex
}

func TestGetOrCreateSession_NewDirectory(t *testing.T) {
	store := newTestStore(t)

	session, err := store.GetOrCreateSession("/home/user/project")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "/home/user/project", session.WorkingDir)
}

func TestGetOrCreateSession_ReusesWithinIdleWindow(t *testing.T) {
	store := newTestStore(t)

	first, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	second, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateSession_RollsOverAfterIdleWindow(t *testing.T) {
	store := newTestStore(t)

	first, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-IdleWindow - time.Minute).Format(sqliteTimeLayout)
	_, err = store.DB().Exec(`UPDATE sessions SET last_message_at = ? WHERE id = ?`, stale, first.ID)
	require.NoError(t, err)

	second, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestGetSession_NotFoundReturnsNilNotError(t *testing.T) {
	store := newTestStore(t)

	session, err := store.GetSession("nonexistent-session-id")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSaveMessageAndGetMessages(t *testing.T) {
	store := newTestStore(t)
	session, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	id1, err := store.SaveMessage(session.ID, RoleUser, "hello", nil)
	require.NoError(t, err)
	assert.Positive(t, id1)

	id2, err := store.SaveMessage(session.ID, RoleAssistant, "hi there", nil)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	messages, err := store.GetMessages(session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, RoleAssistant, messages[1].Role)
}

func TestSaveMessage_BumpsSessionTimestamp(t *testing.T) {
	store := newTestStore(t)
	session, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	old := time.Now().UTC().Add(-time.Hour).Format(sqliteTimeLayout)
	_, err = store.DB().Exec(`UPDATE sessions SET last_message_at = ? WHERE id = ?`, old, session.ID)
	require.NoError(t, err)

	_, err = store.SaveMessage(session.ID, RoleUser, "ping", nil)
	require.NoError(t, err)

	updated, err := store.GetSession(session.ID)
	require.NoError(t, err)
	// Stored timestamps have second granularity, so compare against the
	// hour-old value written above rather than the in-memory creation time.
	assert.True(t, updated.LastMessageAt.After(parseSQLiteTime(old)))
}

func TestSaveSummary_IsMarkedAsSummary(t *testing.T) {
	store := newTestStore(t)
	session, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	_, err = store.SaveSummary(session.ID, "a condensed recap")
	require.NoError(t, err)

	messages, err := store.GetMessages(session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsSummary)
	assert.Equal(t, RoleSystem, messages[0].Role)
}

func TestGetMessagesSince(t *testing.T) {
	store := newTestStore(t)
	session, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	_, err = store.SaveMessage(session.ID, RoleUser, "old message", nil)
	require.NoError(t, err)

	cutoff := time.Now().UTC().Add(-time.Second)
	time.Sleep(10 * time.Millisecond)

	_, err = store.SaveMessage(session.ID, RoleUser, "new message", nil)
	require.NoError(t, err)

	recent, err := store.GetMessagesSince(session.ID, cutoff)
	require.NoError(t, err)
	// Both messages share second-granularity timestamps in SQLite TEXT
	// columns, so assert on content rather than exact count.
	found := false
	for _, m := range recent {
		if m.Content == "new message" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCountMessages(t *testing.T) {
	store := newTestStore(t)
	session, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := store.SaveMessage(session.ID, RoleUser, "msg", nil)
		require.NoError(t, err)
	}

	count, err := store.CountMessages(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDeleteMessagesBefore(t *testing.T) {
	store := newTestStore(t)
	session, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	var lastID int64
	for i := 0; i < 3; i++ {
		id, err := store.SaveMessage(session.ID, RoleUser, "msg", nil)
		require.NoError(t, err)
		lastID = id
	}

	deleted, err := store.DeleteMessagesBefore(session.ID, lastID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := store.CountMessages(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteSession(t *testing.T) {
	store := newTestStore(t)
	session, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(session.ID))

	found, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestDeleteSession_NotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteSession("does-not-exist")
	assert.Error(t, err)
}

func TestDeleteSession_CascadesMessages(t *testing.T) {
	store := newTestStore(t)
	session, err := store.GetOrCreateSession("/project")
	require.NoError(t, err)

	_, err = store.SaveMessage(session.ID, RoleUser, "msg", nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteSession(session.ID))

	var count int
	err = store.DB().QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, session.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestListSessions_OrderedByRecency(t *testing.T) {
	store := newTestStore(t)

	first, err := store.GetOrCreateSession("/a")
	require.NoError(t, err)
	// Timestamps have second granularity; wait past the next second so
	// the two sessions' last_message_at values differ.
	time.Sleep(1100 * time.Millisecond)
	second, err := store.GetOrCreateSession("/b")
	require.NoError(t, err)

	_, err = store.SaveMessage(second.ID, RoleUser, "hello from b", nil)
	require.NoError(t, err)

	sessions, err := store.ListSessions(10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(sessions), 2)
	assert.Equal(t, second.ID, sessions[0].ID)
	assert.Equal(t, "hello from b", sessions[0].Preview)
	_ = first
}

func TestParseRole_DefaultsToUser(t *testing.T) {
	assert.Equal(t, RoleUser, ParseRole("user"))
	assert.Equal(t, RoleAssistant, ParseRole("assistant"))
	assert.Equal(t, RoleSystem, ParseRole("system"))
	assert.Equal(t, RoleUser, ParseRole("something-unexpected"))
}
