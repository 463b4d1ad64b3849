package stream

import (
	"sync"

	"github.com/ashureev/mock-interview/internal/chat"
)

// eventRing is a fixed-size FIFO of events. When full, the oldest event is
// overwritten so a slow reader never blocks publishers.
type eventRing struct {
	buf     []chat.Event
	size    int
	head    int // write position
	tail    int // read position
	full    bool
	dropped uint64
	mu      sync.Mutex
}

func newEventRing(size int) *eventRing {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &eventRing{
		buf:  make([]chat.Event, size),
		size: size,
	}
}

// push appends ev, overwriting the oldest event when the ring is full.
// It reports whether an event was dropped.
func (r *eventRing) push(ev chat.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := false
	if r.full {
		r.tail = (r.tail + 1) % r.size
		r.dropped++
		dropped = true
	}
	r.buf[r.head] = ev
	r.head = (r.head + 1) % r.size
	if r.head == r.tail {
		r.full = true
	}
	return dropped
}

// drain removes and returns every buffered event in publish order.
func (r *eventRing) drain() []chat.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.lenLocked()
	if n == 0 {
		return nil
	}
	out := make([]chat.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.tail + i) % r.size
		out = append(out, r.buf[idx])
		r.buf[idx] = chat.Event{}
	}
	r.head, r.tail, r.full = 0, 0, false
	return out
}

func (r *eventRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *eventRing) lenLocked() int {
	switch {
	case r.full:
		return r.size
	case r.head >= r.tail:
		return r.head - r.tail
	default:
		return r.size - r.tail + r.head
	}
}

// droppedCount returns how many events were overwritten before being read.
func (r *eventRing) droppedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
