package stream

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ashureev/mock-interview/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHubPublishReachesEveryTab(t *testing.T) {
	hub := NewHub(8, testLogger())
	a := hub.Subscribe("user", "tab-1")
	b := hub.Subscribe("user", "tab-2")
	other := hub.Subscribe("someone-else", "tab-1")

	hub.Notifier("user")(chat.Event{Type: chat.EventSessionCreated, SessionID: "s1"})

	for _, sub := range []*Subscription{a, b} {
		select {
		case <-sub.Ready():
		default:
			t.Fatal("subscription was not woken")
		}
		events := sub.Drain()
		require.Len(t, events, 1)
		assert.Equal(t, "s1", events[0].SessionID)
	}
	assert.Empty(t, other.Drain())
}

func TestHubDropsOldestWhenFull(t *testing.T) {
	hub := NewHub(3, testLogger())
	sub := hub.Subscribe("user", "tab")

	for i := range 5 {
		hub.Publish("user", chat.Event{Type: chat.EventMessageAppended, SessionID: fmt.Sprint(i)})
	}

	events := sub.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, "2", events[0].SessionID)
	assert.Equal(t, "4", events[2].SessionID)
	assert.EqualValues(t, 2, sub.Dropped())
	assert.Empty(t, sub.Drain())
}

func TestHubSubscribeReplacesTab(t *testing.T) {
	hub := NewHub(4, testLogger())
	first := hub.Subscribe("user", "tab")
	second := hub.Subscribe("user", "tab")

	select {
	case <-first.Done():
	default:
		t.Fatal("replaced subscription was not closed")
	}
	assert.Equal(t, 1, hub.Count("user"))

	// A stale unsubscribe must not remove the replacement.
	hub.Unsubscribe("user", "tab", first)
	assert.Equal(t, 1, hub.Count("user"))

	hub.Unsubscribe("user", "tab", second)
	assert.Zero(t, hub.Count("user"))
}

func TestHubCloseUser(t *testing.T) {
	hub := NewHub(4, testLogger())
	a := hub.Subscribe("user", "tab-1")
	b := hub.Subscribe("user", "tab-2")

	hub.CloseUser("user")
	hub.CloseUser("nobody")

	for _, sub := range []*Subscription{a, b} {
		select {
		case <-sub.Done():
		default:
			t.Fatal("subscription was not closed")
		}
	}
	assert.Zero(t, hub.Count("user"))
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub(16, testLogger())
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := range 500 {
			sub := hub.Subscribe("user", fmt.Sprintf("tab-%d", i%10))
			hub.Unsubscribe("user", fmt.Sprintf("tab-%d", i%10), sub)
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			hub.Publish("user", chat.Event{Type: chat.EventLoadingChanged})
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			hub.Count("user")
		}
	}()
	wg.Wait()
}

func TestEventRingWrapAround(t *testing.T) {
	r := newEventRing(2)
	assert.Zero(t, r.len())

	r.push(chat.Event{SessionID: "a"})
	assert.Equal(t, 1, r.len())
	r.push(chat.Event{SessionID: "b"})
	assert.Equal(t, 2, r.len())
	assert.True(t, r.push(chat.Event{SessionID: "c"}))

	events := r.drain()
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].SessionID)
	assert.Equal(t, "c", events[1].SessionID)
	assert.Zero(t, r.len())

	r.push(chat.Event{SessionID: "d"})
	events = r.drain()
	require.Len(t, events, 1)
	assert.Equal(t, "d", events[0].SessionID)
}
