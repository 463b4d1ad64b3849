package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mock-interview/internal/domain"
	"github.com/google/uuid"
)

const (
	titleDateLayout = "2006-01-02"
	writeTimeout    = 5 * time.Second
)

// SceneCatalog is the view of the scene catalog the chat engine needs.
type SceneCatalog interface {
	Has(id string) bool
	Label(id string) string
	Welcome(id string) string
	DefaultSceneID() string
}

// Store owns the ordered session list and the active-session pointer.
// Sessions are kept most-recently-created first. Every change to the list is
// written to Storage in the background; a write always serializes the state
// current at the time it runs.
type Store struct {
	catalog    SceneCatalog
	storage    Storage
	key        string
	logger     *slog.Logger
	newID      func() string
	now        func() time.Time
	syncWrites bool

	mu       sync.RWMutex
	sessions []*domain.ChatSession
	activeID string
	version  uint64

	writeMu sync.Mutex
	written uint64

	signal    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStorageKey overrides StorageKey.
func WithStorageKey(key string) StoreOption {
	return func(s *Store) { s.key = key }
}

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithIDGenerator overrides session and message id generation.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) { s.newID = newID }
}

// WithStoreClock overrides the time source.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithSyncPersistence makes every mutation write to Storage before returning.
func WithSyncPersistence() StoreOption {
	return func(s *Store) { s.syncWrites = true }
}

// NewStore creates an empty store backed by storage. Call Restore to load
// persisted sessions and Close to stop the background writer.
func NewStore(catalog SceneCatalog, storage Storage, opts ...StoreOption) *Store {
	s := &Store{
		catalog:  catalog,
		storage:  storage,
		key:      StorageKey,
		logger:   slog.Default(),
		newID:    newTimeOrderedID,
		now:      time.Now,
		sessions: []*domain.ChatSession{},
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.syncWrites {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

func newTimeOrderedID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Create starts a session in sceneID seeded with the scene's welcome message,
// prepends it to the list and makes it active. Unknown scene ids get the
// generic welcome and keep their id.
func (s *Store) Create(sceneID string) domain.ChatSession {
	now := s.now()
	ts := now.UnixMilli()
	sess := &domain.ChatSession{
		ID:      s.newID(),
		Title:   fmt.Sprintf("%s - %s", s.catalog.Label(sceneID), now.Format(titleDateLayout)),
		SceneID: sceneID,
		Messages: []domain.Message{{
			ID:        s.newID(),
			Role:      domain.RoleAssistant,
			Content:   s.catalog.Welcome(sceneID),
			Timestamp: ts,
		}},
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	s.mu.Lock()
	s.sessions = append([]*domain.ChatSession{sess}, s.sessions...)
	s.activeID = sess.ID
	s.version++
	out := sess.Clone()
	s.mu.Unlock()

	s.logger.Debug("Session created", "session_id", sess.ID, "scene_id", sceneID)
	s.schedule()
	return out
}

// Select makes id the active session.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(id) < 0 {
		s.logger.Debug("Select of unknown session", "session_id", id)
		return fmt.Errorf("select %s: %w", id, ErrUnknownSession)
	}
	s.activeID = id
	return nil
}

// Delete removes a session. If it was active, the first remaining session
// becomes active, or none if the list is now empty. It returns the active id
// after the deletion.
func (s *Store) Delete(id string) (string, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Debug("Delete of unknown session", "session_id", id)
		return "", fmt.Errorf("delete %s: %w", id, ErrUnknownSession)
	}
	s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.sessions) > 0 {
			s.activeID = s.sessions[0].ID
		}
	}
	active := s.activeID
	s.version++
	s.mu.Unlock()

	s.logger.Debug("Session deleted", "session_id", id, "active_session_id", active)
	s.schedule()
	return active, nil
}

// AppendMessage appends msg to session id and refreshes its UpdatedAt.
// Missing ids and timestamps are filled in, and a timestamp earlier than the
// session's last message is raised to it. It returns the stored message.
func (s *Store) AppendMessage(id string, msg domain.Message) (domain.Message, error) {
	now := s.now().UnixMilli()
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = now
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Debug("Append to unknown session", "session_id", id, "role", msg.Role)
		return domain.Message{}, fmt.Errorf("append to %s: %w", id, ErrUnknownSession)
	}
	sess := s.sessions[i]
	if last := sess.LastTimestamp(); msg.Timestamp < last {
		msg.Timestamp = last
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = max(now, msg.Timestamp)
	s.version++
	s.mu.Unlock()

	s.schedule()
	return msg, nil
}

// ReassignScene points session id at sceneID without touching its messages.
func (s *Store) ReassignScene(id, sceneID string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("reassign %s: %w", id, ErrUnknownSession)
	}
	sess := s.sessions[i]
	sess.SceneID = sceneID
	sess.UpdatedAt = s.now().UnixMilli()
	s.version++
	s.mu.Unlock()

	s.schedule()
	return nil
}

// Clear removes every session and clears the active pointer.
func (s *Store) Clear() {
	s.mu.Lock()
	s.sessions = []*domain.ChatSession{}
	s.activeID = ""
	s.version++
	s.mu.Unlock()

	s.schedule()
}

// Sessions returns copies of all sessions in list order.
func (s *Store) Sessions() []domain.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChatSession, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// Session returns a copy of session id.
func (s *Store) Session(id string) (domain.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.ChatSession{}, false
	}
	return s.sessions[i].Clone(), true
}

// ActiveID returns the active session id, or "" if none is active.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the active session.
func (s *Store) Active() (domain.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(s.activeID)
	if i < 0 {
		return domain.ChatSession{}, false
	}
	return s.sessions[i].Clone(), true
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Restore replaces the in-memory state with the persisted session list and
// activates its first session. Missing or corrupt data yields an empty list.
func (s *Store) Restore(ctx context.Context) []domain.ChatSession {
	sessions := []*domain.ChatSession{}

	data, err := s.storage.Read(ctx, s.key)
	switch {
	case err != nil:
		s.logger.Warn("Failed to read persisted sessions, starting empty", "key", s.key, "error", err)
	case len(data) == 0:
	default:
		decoded, err := decodeSessions(data, s.logger)
		if err != nil {
			s.logger.Warn("Discarding persisted sessions", "key", s.key, "error", err)
		} else {
			sessions = decoded
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = sessions
	s.activeID = ""
	if len(sessions) > 0 {
		s.activeID = sessions[0].ID
	}
	s.version++
	s.written = s.version

	out := make([]domain.ChatSession, len(sessions))
	for i, sess := range sessions {
		out[i] = sess.Clone()
	}
	s.logger.Debug("Sessions restored", "key", s.key, "count", len(out))
	return out
}

// Persist writes the full session list to Storage now.
func (s *Store) Persist(ctx context.Context) error {
	return s.write(ctx, true)
}

// Flush writes the session list if it changed since the last successful write.
func (s *Store) Flush(ctx context.Context) error {
	return s.write(ctx, false)
}

// Close stops the background writer and flushes pending changes.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.Flush(ctx)
}

func (s *Store) write(ctx context.Context, force bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	version := s.version
	if !force && version == s.written {
		s.mu.RUnlock()
		return nil
	}
	data, err := encodeSessions(s.sessions)
	count := len(s.sessions)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := s.storage.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist sessions: %w", err)
	}
	s.written = version
	s.logger.Debug("Sessions persisted", "key", s.key, "count", count, "bytes", len(data))
	return nil
}

func (s *Store) schedule() {
	if s.syncWrites || s.closed() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.Flush(ctx); err != nil {
			s.logger.Error("Failed to persist sessions", "key", s.key, "error", err)
		}
		return
	}
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// closed reports whether Close has stopped the background writer. Mutations
// after that point are written synchronously.
func (s *Store) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("Failed to persist sessions", "key", s.key, "error", err)
			}
			cancel()
		}
	}
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}
