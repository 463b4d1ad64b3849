package workspace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/mock-interview/internal/agent"
	"github.com/ashureev/mock-interview/internal/chat"
	"github.com/ashureev/mock-interview/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storages struct {
	mu   sync.Mutex
	byID map[string]*chat.MemoryStorage
}

func (s *storages) get(userID string) *chat.MemoryStorage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID == nil {
		s.byID = make(map[string]*chat.MemoryStorage)
	}
	st, ok := s.byID[userID]
	if !ok {
		st = chat.NewMemoryStorage()
		s.byID[userID] = st
	}
	return st
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFactory(st *storages, replier agent.Replier, builds *atomic.Int32) Factory {
	catalog := scene.Default()
	return func(_ context.Context, userID string) (*chat.Orchestrator, error) {
		builds.Add(1)
		store := chat.NewStore(catalog, st.get(userID), chat.WithStoreLogger(quietLogger()))
		return chat.NewOrchestrator(store, replier, catalog, chat.WithLogger(quietLogger())), nil
	}
}

func instant() agent.Replier {
	return agent.NewCannedReplier(scene.Default(), agent.DelayConfig{})
}

func TestGetCachesPerUser(t *testing.T) {
	var builds atomic.Int32
	r := NewRegistry(testFactory(&storages{}, instant(), &builds), time.Hour, quietLogger())
	defer r.Close()

	a1, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	a2, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	b, err := r.Get(context.Background(), "bob")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.EqualValues(t, 2, builds.Load())
	assert.Equal(t, 2, r.Len())

	_, err = r.Get(context.Background(), "")
	assert.Error(t, err)
}

func TestEvictFlushesAndRestores(t *testing.T) {
	var builds atomic.Int32
	st := &storages{}
	r := NewRegistry(testFactory(st, instant(), &builds), time.Hour, quietLogger())
	defer r.Close()

	orch, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	sess := orch.NewChat()

	r.Evict("alice")
	assert.Zero(t, r.Len())

	state, err := r.State(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, state.Sessions, 1)
	assert.Equal(t, sess.ID, state.ActiveSessionID)
	assert.EqualValues(t, 2, builds.Load())
}

func TestIdleWorkspaceExpires(t *testing.T) {
	var builds atomic.Int32
	st := &storages{}
	r := NewRegistry(testFactory(st, instant(), &builds), 50*time.Millisecond, quietLogger())
	defer r.Close()

	orch, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	sess := orch.NewChat()

	time.Sleep(80 * time.Millisecond)
	r.Sweep()
	assert.Zero(t, r.Len())

	data, err := st.get("alice").Read(context.Background(), chat.StorageKey)
	require.NoError(t, err)
	assert.Contains(t, string(data), sess.ID)
}

func TestExpiredEntryIsReplacedOnGet(t *testing.T) {
	var builds atomic.Int32
	st := &storages{}
	r := NewRegistry(testFactory(st, instant(), &builds), 50*time.Millisecond, quietLogger())
	defer r.Close()

	orch, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	sess := orch.NewChat()

	time.Sleep(80 * time.Millisecond)
	fresh, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotSame(t, orch, fresh)
	assert.Equal(t, sess.ID, fresh.State().ActiveSessionID)
}

type gateReplier struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateReplier) Reply(ctx context.Context, _ agent.ReplyRequest) (agent.Reply, error) {
	close(g.started)
	select {
	case <-g.release:
		return agent.Reply{Content: "done"}, nil
	case <-ctx.Done():
		return agent.Reply{}, ctx.Err()
	}
}

func TestBusyWorkspaceIsNotEvicted(t *testing.T) {
	var builds atomic.Int32
	gate := &gateReplier{started: make(chan struct{}), release: make(chan struct{})}
	r := NewRegistry(testFactory(&storages{}, gate, &builds), 50*time.Millisecond, quietLogger())
	defer r.Close()

	orch, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := orch.SendMessage(context.Background(), "hello")
		done <- err
	}()
	<-gate.started

	time.Sleep(80 * time.Millisecond)
	r.Sweep()
	assert.Equal(t, 1, r.Len())

	close(gate.release)
	require.NoError(t, <-done)

	again, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Same(t, orch, again)
}

func TestAcquiredWorkspaceIsNotEvicted(t *testing.T) {
	var builds atomic.Int32
	st := &storages{}
	r := NewRegistry(testFactory(st, instant(), &builds), 50*time.Millisecond, quietLogger())
	defer r.Close()

	orch, release, err := r.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	r.Sweep()
	require.Equal(t, 1, r.Len())

	// The holder keeps writing through the same orchestrator.
	sess := orch.NewChat()
	again, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Same(t, orch, again)
	assert.Equal(t, int32(1), builds.Load())

	release()
	release()
	time.Sleep(80 * time.Millisecond)
	r.Sweep()
	assert.Zero(t, r.Len())

	restored, err := r.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.NotSame(t, orch, restored)
	_, ok := restored.Session(sess.ID)
	assert.True(t, ok)
}

func TestFactoryError(t *testing.T) {
	boom := errors.New("db down")
	r := NewRegistry(func(context.Context, string) (*chat.Orchestrator, error) {
		return nil, boom
	}, time.Hour, quietLogger())
	defer r.Close()

	_, err := r.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, r.Len())
}

func TestCloseFlushesAll(t *testing.T) {
	var builds atomic.Int32
	st := &storages{}
	r := NewRegistry(testFactory(st, instant(), &builds), time.Hour, quietLogger())

	for _, user := range []string{"alice", "bob"} {
		orch, err := r.Get(context.Background(), user)
		require.NoError(t, err)
		orch.NewChat()
	}

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	for _, user := range []string{"alice", "bob"} {
		data, err := st.get(user).Read(context.Background(), chat.StorageKey)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}

	_, err := r.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrClosed)
}
