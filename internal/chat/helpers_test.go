package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/mock-interview/internal/scene"
)

var testClockBase = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%03d", n.Add(1))
	}
}

// steppingClock advances one millisecond per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := testClockBase
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

func newTestStore(t *testing.T, storage Storage, opts ...StoreOption) *Store {
	t.Helper()
	base := []StoreOption{
		WithStoreLogger(discardLogger()),
		WithIDGenerator(sequentialIDs()),
		WithStoreClock(steppingClock()),
		WithSyncPersistence(),
	}
	s := NewStore(scene.Default(), storage, append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type failingStorage struct {
	readErr  error
	writeErr error
}

func (f failingStorage) Read(context.Context, string) ([]byte, error) { return nil, f.readErr }
func (f failingStorage) Write(context.Context, string, []byte) error  { return f.writeErr }
func (f failingStorage) Delete(context.Context, string) error         { return nil }

var errStorageDown = errors.New("storage down")
