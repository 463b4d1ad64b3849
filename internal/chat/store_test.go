package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/mock-interview/internal/domain"
	"github.com/ashureev/mock-interview/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSeedsWelcomeMessage(t *testing.T) {
	catalog := scene.Default()
	s := newTestStore(t, NewMemoryStorage())

	sess := s.Create("backend")

	assert.Equal(t, "backend", sess.SceneID)
	assert.Equal(t, "Backend Interview - 2026-03-14", sess.Title)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, sess.Messages[0].Role)
	assert.Equal(t, catalog.Welcome("backend"), sess.Messages[0].Content)
	assert.Equal(t, sess.CreatedAt, sess.UpdatedAt)
	assert.Equal(t, sess.ID, s.ActiveID())
}

func TestCreateUnknownSceneUsesGenericWelcome(t *testing.T) {
	catalog := scene.Default()
	s := newTestStore(t, NewMemoryStorage())

	sess := s.Create("quantum")

	assert.Equal(t, "quantum", sess.SceneID)
	assert.True(t, strings.HasPrefix(sess.Title, scene.FallbackLabel+" - "))
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, catalog.Welcome(""), sess.Messages[0].Content)
}

func TestCreatePrependsAndUpdatesDoNotReorder(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())

	a := s.Create("frontend")
	b := s.Create("backend")
	c := s.Create("resume")

	_, err := s.AppendMessage(a.ID, domain.Message{Role: domain.RoleUser, Content: "hello"})
	require.NoError(t, err)
	require.NoError(t, s.ReassignScene(b.ID, "algorithm"))

	ids := sessionIDs(s.Sessions())
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, ids)
}

func TestSelect(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())
	a := s.Create("frontend")
	s.Create("backend")

	require.NoError(t, s.Select(a.ID))
	assert.Equal(t, a.ID, s.ActiveID())

	err := s.Select("missing")
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, a.ID, s.ActiveID())
}

func TestDeleteActivePromotesFirstRemaining(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())
	a := s.Create("frontend")
	b := s.Create("backend")
	c := s.Create("resume")
	require.NoError(t, s.Select(b.ID))

	active, err := s.Delete(b.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, active)
	assert.Equal(t, []string{c.ID, a.ID}, sessionIDs(s.Sessions()))
}

func TestDeleteInactiveKeepsActive(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())
	a := s.Create("frontend")
	b := s.Create("backend")

	active, err := s.Delete(a.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active)
	assert.Equal(t, b.ID, s.ActiveID())
}

func TestDeleteLastSessionClearsActive(t *testing.T) {
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	a := s.Create("frontend")

	active, err := s.Delete(a.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, s.ActiveID())
	assert.Zero(t, s.Len())

	data, err := storage.Read(context.Background(), StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestDeleteUnknownSession(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())
	a := s.Create("frontend")

	_, err := s.Delete("missing")
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Equal(t, a.ID, s.ActiveID())
	assert.Equal(t, 1, s.Len())
}

func TestAppendMessageUnknownSession(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())

	_, err := s.AppendMessage("missing", domain.Message{Role: domain.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestAppendMessageKeepsTimestampsMonotonic(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())
	sess := s.Create("frontend")
	welcome := sess.Messages[0].Timestamp

	msg, err := s.AppendMessage(sess.ID, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   "late",
		Timestamp: welcome - 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, welcome, msg.Timestamp)
	assert.NotEmpty(t, msg.ID)

	got, ok := s.Session(sess.ID)
	require.True(t, ok)
	assert.GreaterOrEqual(t, got.UpdatedAt, msg.Timestamp)
	assert.Greater(t, got.UpdatedAt, sess.UpdatedAt)
}

func TestSessionsReturnsCopies(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())
	sess := s.Create("frontend")

	list := s.Sessions()
	list[0].Messages[0].Content = "mutated"
	list[0].Title = "mutated"

	got, ok := s.Session(sess.ID)
	require.True(t, ok)
	assert.NotEqual(t, "mutated", got.Title)
	assert.NotEqual(t, "mutated", got.Messages[0].Content)
}

func TestPersistRestoreRoundTrip(t *testing.T) {
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	a := s.Create("frontend")
	_, err := s.AppendMessage(a.ID, domain.Message{Role: domain.RoleUser, Content: "I'm ready"})
	require.NoError(t, err)
	b := s.Create("system-design")
	_, err = s.AppendMessage(b.ID, domain.Message{Role: domain.RoleUser, Content: "start with the API"})
	require.NoError(t, err)
	c := s.Create("algorithm")
	d := s.Create("resume")
	_, err = s.Delete(b.ID)
	require.NoError(t, err)
	want := s.Sessions()

	restored := newTestStore(t, storage)
	got := restored.Restore(context.Background())

	assert.Equal(t, want, got)
	assert.Equal(t, []string{d.ID, c.ID, a.ID}, sessionIDs(got))
	assert.Equal(t, d.ID, restored.ActiveID())
}

func TestPersistedFormat(t *testing.T) {
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	s.Create("frontend")

	data, err := storage.Read(context.Background(), StorageKey)
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	for _, field := range []string{"id", "title", "sceneId", "messages", "createdAt", "updatedAt"} {
		assert.Contains(t, raw[0], field)
	}
	msgs := raw[0]["messages"].([]any)
	msg := msgs[0].(map[string]any)
	for _, field := range []string{"id", "role", "content", "timestamp"} {
		assert.Contains(t, msg, field)
	}
}

func TestRestoreAbsentStorage(t *testing.T) {
	s := newTestStore(t, NewMemoryStorage())

	assert.Empty(t, s.Restore(context.Background()))
	assert.Empty(t, s.ActiveID())
}

func TestRestoreMalformedDataStartsEmpty(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":  `{{{`,
		"object":    `{"id":"x"}`,
		"string":    `"sessions"`,
		"truncated": `[{"id":"a","messages":[`,
	} {
		t.Run(name, func(t *testing.T) {
			storage := NewMemoryStorage()
			require.NoError(t, storage.Write(context.Background(), StorageKey, []byte(payload)))

			s := newTestStore(t, storage)
			assert.Empty(t, s.Restore(context.Background()))
			assert.Empty(t, s.ActiveID())
		})
	}
}

func TestRestoreReadErrorStartsEmpty(t *testing.T) {
	s := newTestStore(t, failingStorage{readErr: errStorageDown})

	assert.Empty(t, s.Restore(context.Background()))
}

func TestRestoreToleratesExtraAndMissingFields(t *testing.T) {
	payload := `[
		{"id":"s1","title":"Old","sceneId":"frontend","messages":null,"createdAt":1,"updatedAt":2,"pinned":true},
		{"title":"no id"},
		{"id":"s2","sceneId":"removed-scene","messages":[
			{"id":"m1","role":"user","content":"hi","timestamp":3,"extra":1},
			{"id":"m2","role":"tool","content":"call","timestamp":4},
			{"id":"m3","role":"","content":"blank","timestamp":5},
			{"id":"m4","role":"assistant","content":"hello","timestamp":6}
		]},
		{"id":"s1","title":"duplicate"},
		42
	]`
	storage := NewMemoryStorage()
	require.NoError(t, storage.Write(context.Background(), StorageKey, []byte(payload)))

	s := newTestStore(t, storage)
	got := s.Restore(context.Background())

	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "Old", got[0].Title)
	assert.NotNil(t, got[0].Messages)
	assert.Empty(t, got[0].Messages)
	assert.Equal(t, "s2", got[1].ID)
	assert.Equal(t, "removed-scene", got[1].SceneID)
	require.Len(t, got[1].Messages, 2)
	assert.Equal(t, "m1", got[1].Messages[0].ID)
	assert.Equal(t, "hi", got[1].Messages[0].Content)
	assert.Equal(t, "m4", got[1].Messages[1].ID)
	assert.Equal(t, domain.RoleAssistant, got[1].Messages[1].Role)
	assert.Equal(t, "s1", s.ActiveID())
}

func TestClearPersistsEmptyList(t *testing.T) {
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	s.Create("frontend")
	s.Create("backend")

	s.Clear()

	assert.Zero(t, s.Len())
	assert.Empty(t, s.ActiveID())
	data, err := storage.Read(context.Background(), StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestSelectDoesNotPersist(t *testing.T) {
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	a := s.Create("frontend")
	s.Create("backend")
	writes := storage.Writes()

	require.NoError(t, s.Select(a.ID))
	assert.Equal(t, writes, storage.Writes())
}

func TestBackgroundPersistence(t *testing.T) {
	storage := NewMemoryStorage()
	s := NewStore(scene.Default(), storage,
		WithStoreLogger(discardLogger()),
		WithIDGenerator(sequentialIDs()),
	)

	for range 20 {
		s.Create("frontend")
	}
	require.NoError(t, s.Close())

	data, err := storage.Read(context.Background(), StorageKey)
	require.NoError(t, err)
	var persisted []domain.ChatSession
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Len(t, persisted, 20)
	assert.LessOrEqual(t, storage.Writes(), 20)
}

func TestBackgroundPersistenceReachesStorage(t *testing.T) {
	storage := NewMemoryStorage()
	s := NewStore(scene.Default(), storage, WithStoreLogger(discardLogger()))
	t.Cleanup(func() { _ = s.Close() })

	sess := s.Create("resume")

	assert.Eventually(t, func() bool {
		data, err := storage.Read(context.Background(), StorageKey)
		return err == nil && strings.Contains(string(data), sess.ID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFlushSkipsCleanState(t *testing.T) {
	storage := NewMemoryStorage()
	s := newTestStore(t, storage)
	s.Create("frontend")
	writes := storage.Writes()

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, writes, storage.Writes())

	require.NoError(t, s.Persist(context.Background()))
	assert.Equal(t, writes+1, storage.Writes())
}

func TestWriteFailureIsReported(t *testing.T) {
	s := NewStore(scene.Default(), failingStorage{writeErr: errStorageDown},
		WithStoreLogger(discardLogger()),
		WithSyncPersistence(),
	)

	s.Create("frontend")
	err := s.Persist(context.Background())
	assert.ErrorIs(t, err, errStorageDown)
	assert.Equal(t, 1, s.Len())
}

func TestCustomStorageKey(t *testing.T) {
	storage := NewMemoryStorage()
	s := newTestStore(t, storage, WithStorageKey("other"))
	s.Create("frontend")

	data, err := storage.Read(context.Background(), "other")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	data, err = storage.Read(context.Background(), StorageKey)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func sessionIDs(sessions []domain.ChatSession) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

func TestMutationAfterClosePersistsSynchronously(t *testing.T) {
	storage := NewMemoryStorage()
	s := NewStore(scene.Default(), storage, WithStoreLogger(discardLogger()))
	require.NoError(t, s.Close())

	sess := s.Create("backend")

	data, err := storage.Read(context.Background(), StorageKey)
	require.NoError(t, err)
	assert.Contains(t, string(data), sess.ID)
}
