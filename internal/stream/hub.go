// Package stream fans orchestrator events out to connected browser tabs.
package stream

import (
	"log/slog"
	"sync"

	"github.com/ashureev/mock-interview/internal/chat"
)

const defaultBufferSize = 64

// Subscription is one tab's view of a user's event stream.
type Subscription struct {
	ring *eventRing
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscription(size int) *Subscription {
	return &Subscription{
		ring: newEventRing(size),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Ready is signalled when events are waiting to be drained.
func (s *Subscription) Ready() <-chan struct{} {
	return s.wake
}

// Done is closed when the subscription is replaced or the hub drops the user.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Drain returns every pending event in publish order.
func (s *Subscription) Drain() []chat.Event {
	return s.ring.drain()
}

// Dropped returns how many events were discarded because the reader fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.ring.droppedCount()
}

func (s *Subscription) push(ev chat.Event) bool {
	dropped := s.ring.push(ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return dropped
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub tracks subscriptions per user and tab.
type Hub struct {
	mu         sync.RWMutex
	active     map[string]map[string]*Subscription
	bufferSize int
	logger     *slog.Logger
}

// NewHub creates a hub whose subscriptions buffer up to bufferSize events.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active:     make(map[string]map[string]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a subscription for a user's tab. An existing
// subscription for the same tab is closed and replaced.
func (h *Hub) Subscribe(userID, tabID string) *Subscription {
	sub := newSubscription(h.bufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*Subscription)
	}
	if existing, exists := h.active[userID][tabID]; exists {
		existing.close()
	}
	h.active[userID][tabID] = sub
	h.logger.Info("Event stream subscribed", "user_id", userID, "tab_id", tabID)
	return sub
}

// Unsubscribe removes sub if it is still the tab's current subscription.
func (h *Hub) Unsubscribe(userID, tabID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub.close()
	if tabs, ok := h.active[userID]; ok {
		if current, exists := tabs[tabID]; exists && current == sub {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(h.active, userID)
			}
			h.logger.Info("Event stream unsubscribed", "user_id", userID, "tab_id", tabID)
		}
	}
}

// CloseUser terminates every subscription for a user.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tabs, ok := h.active[userID]
	if !ok {
		return
	}
	for tabID, sub := range tabs {
		sub.close()
		h.logger.Info("Event stream closed", "user_id", userID, "tab_id", tabID)
	}
	delete(h.active, userID)
}

// Count returns the number of subscribed tabs for a user.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Publish delivers ev to every tab of userID without blocking.
func (h *Hub) Publish(userID string, ev chat.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for tabID, sub := range h.active[userID] {
		if sub.push(ev) {
			h.logger.Debug("Event stream buffer full, dropped oldest event",
				"user_id", userID,
				"tab_id", tabID,
				"event_type", ev.Type,
			)
		}
	}
}

// Notifier returns a chat.Notifier that publishes to userID.
func (h *Hub) Notifier(userID string) chat.Notifier {
	return func(ev chat.Event) {
		h.Publish(userID, ev)
	}
}
