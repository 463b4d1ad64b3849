package chat

import (
	"context"
	"sync"
)

// StorageKey is the key under which the session list is persisted.
const StorageKey = "ai_chat_sessions"

// Storage is durable key/value storage for the serialized session list.
type Storage interface {
	// Read returns the value stored under key, or nil and no error if there is none.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write replaces the value stored under key.
	Write(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu     sync.Mutex
	data   map[string][]byte
	writes int
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

// Read implements Storage.
func (m *MemoryStorage) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Write implements Storage.
func (m *MemoryStorage) Write(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(data))
	copy(v, data)
	m.data[key] = v
	m.writes++
	return nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Writes returns how many writes have been made.
func (m *MemoryStorage) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
