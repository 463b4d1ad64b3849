// Package workspace keeps one chat orchestrator per user alive while the
// user is active.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mock-interview/internal/chat"
	"github.com/patrickmn/go-cache"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("workspace registry closed")

// Factory builds an orchestrator for userID. The registry restores it.
type Factory func(ctx context.Context, userID string) (*chat.Orchestrator, error)

// Registry caches per-user orchestrators with idle expiry. Every Get or
// Acquire refreshes the entry. An expired orchestrator is flushed and closed
// unless it is still acquired or a reply is in flight, in which case it is
// kept for another period.
//
// All evictions run with mu held, so an evicted orchestrator has finished
// writing before the same user's sessions are restored again.
type Registry struct {
	cache   *cache.Cache
	factory Factory
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRegistry creates a registry whose entries expire after idleTTL without access.
func NewRegistry(factory Factory, idleTTL time.Duration, logger *slog.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		// The registry sweeps expired entries itself; see sweep.
		cache:   cache.New(idleTTL, 0),
		factory: factory,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	r.cache.OnEvicted(r.onEvicted)

	r.wg.Add(1)
	go r.janitor(sweepInterval(idleTTL))
	return r
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// entry is a cached orchestrator and the number of callers holding it.
// refs is guarded by Registry.mu.
type entry struct {
	orch *chat.Orchestrator
	refs int
}

// Get returns the orchestrator of userID, creating and restoring it on first use.
// The orchestrator is not pinned; callers that use it across a request should
// call Acquire instead.
func (r *Registry) Get(ctx context.Context, userID string) (*chat.Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.orch, nil
}

// Acquire returns the orchestrator of userID pinned against eviction until
// release is called. release may be called more than once.
func (r *Registry) Acquire(ctx context.Context, userID string) (*chat.Orchestrator, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	e.refs++

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			e.refs--
			if !r.closed {
				if x, found := r.cache.Get(userID); found && x.(*entry) == e {
					r.cache.SetDefault(userID, e)
				}
			}
		})
	}
	return e.orch, release, nil
}

// lookup runs with mu held.
func (r *Registry) lookup(ctx context.Context, userID string) (*entry, error) {
	if userID == "" {
		return nil, errors.New("workspace: empty user id")
	}
	if r.closed {
		return nil, ErrClosed
	}

	if x, found := r.cache.Get(userID); found {
		e := x.(*entry)
		r.cache.SetDefault(userID, e)
		return e, nil
	}

	// An expired entry the sweep has not collected yet is still in the cache;
	// evict it so its pending writes land before the restore below.
	r.cache.Delete(userID)
	if x, found := r.cache.Get(userID); found {
		return x.(*entry), nil
	}

	orch, err := r.factory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("build workspace for %s: %w", userID, err)
	}
	state := orch.Restore(ctx)
	e := &entry{orch: orch}
	r.cache.SetDefault(userID, e)
	r.logger.Info("Workspace loaded", "user_id", userID, "sessions", len(state.Sessions), "scene_id", state.SceneID)
	return e, nil
}

// State returns the chat state of userID.
func (r *Registry) State(ctx context.Context, userID string) (chat.State, error) {
	orch, release, err := r.Acquire(ctx, userID)
	if err != nil {
		return chat.State{}, err
	}
	defer release()
	return orch.State(), nil
}

// Evict flushes and drops the orchestrator of userID if it is loaded.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(userID)
}

// Len returns the number of loaded workspaces.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Sweep evicts every expired workspace.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.DeleteExpired()
}

// Close stops the sweep and flushes and closes every loaded orchestrator.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.stop)
	r.cache.DeleteExpired()
	items := r.cache.Items()
	r.cache.Flush()
	r.mu.Unlock()

	r.wg.Wait()

	var errs []error
	for userID, item := range items {
		e := item.Object.(*entry)
		if err := e.orch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close workspace %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) janitor(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// onEvicted runs with mu held.
func (r *Registry) onEvicted(userID string, x any) {
	e, ok := x.(*entry)
	if !ok {
		return
	}

	if (e.refs > 0 || e.orch.Loading()) && !r.closed {
		r.cache.SetDefault(userID, e)
		r.logger.Debug("Workspace busy, deferring eviction", "user_id", userID, "refs", e.refs)
		return
	}
	if err := e.orch.Close(); err != nil {
		r.logger.Error("Failed to flush evicted workspace", "user_id", userID, "error", err)
		return
	}
	r.logger.Info("Workspace evicted", "user_id", userID)
}
