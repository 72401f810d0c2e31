package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/challenge-bot/internal/models"
)

// Locker guarantees one running session per owner and channel, across bot
// replicas when backed by a shared store.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type running struct {
	ctrl   *Controller
	key    string
	token  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts sessions and tracks the ones still running.
type Manager struct {
	deps   Deps
	opts   Options
	locks  Locker
	maxAge time.Duration

	mu       sync.RWMutex
	sessions map[string]*running // by session id
	byKey    map[string]string   // owner:channel -> session id
	wg       sync.WaitGroup
}

// NewManager creates a session manager. maxAge bounds how long a lock is held.
func NewManager(deps Deps, opts Options, locks Locker, maxAge time.Duration) *Manager {
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &Manager{
		deps:     deps,
		opts:     opts,
		locks:    locks,
		maxAge:   maxAge,
		sessions: make(map[string]*running),
		byKey:    make(map[string]string),
	}
}

func sessionKey(req Request) string {
	return req.Owner.ID + ":" + req.Channel
}

// Start launches a session for req in the background. The session lives until
// it terminates, ctx ends, or it is cancelled.
func (m *Manager) Start(ctx context.Context, req Request) (models.SessionInfo, error) {
	key := sessionKey(req)
	ctrl := NewController(m.deps, m.opts, req)

	m.mu.Lock()
	if _, busy := m.byKey[key]; busy {
		m.mu.Unlock()
		return models.SessionInfo{}, ErrAlreadyRunning
	}
	m.byKey[key] = ctrl.ID()
	m.mu.Unlock()

	token, ok, err := m.locks.Acquire(ctx, key, m.maxAge)
	if err != nil || !ok {
		m.mu.Lock()
		delete(m.byKey, key)
		m.mu.Unlock()
		if err != nil {
			return models.SessionInfo{}, fmt.Errorf("failed to lock session: %w", err)
		}
		return models.SessionInfo{}, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &running{ctrl: ctrl, key: key, token: token, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.sessions[ctrl.ID()] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		defer m.finish(r)
		ctrl.Run(runCtx)
	}()

	return ctrl.Info(), nil
}

func (m *Manager) finish(r *running) {
	r.cancel()

	m.mu.Lock()
	delete(m.sessions, r.ctrl.ID())
	if m.byKey[r.key] == r.ctrl.ID() {
		delete(m.byKey, r.key)
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := m.locks.Release(ctx, r.key, r.token); err != nil {
		slog.Warn("failed to release session lock", "session_id", r.ctrl.ID(), "error", err)
	}
}

// Get returns a running session
func (m *Manager) Get(id string) (models.SessionInfo, bool) {
	m.mu.RLock()
	r, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return models.SessionInfo{}, false
	}
	return r.ctrl.Info(), true
}

// List returns every running session, oldest first
func (m *Manager) List() []models.SessionInfo {
	m.mu.RLock()
	out := make([]models.SessionInfo, 0, len(m.sessions))
	for _, r := range m.sessions {
		out = append(out, r.ctrl.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Count returns the number of running sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Cancel stops a session and waits for it to tear down.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.RLock()
	r, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReapStale cancels sessions older than maxAge and returns their ids.
func (m *Manager) ReapStale(ctx context.Context, maxAge time.Duration) []string {
	var stale []string
	for _, info := range m.List() {
		if info.Age() > maxAge {
			stale = append(stale, info.ID)
		}
	}

	for _, id := range stale {
		if err := m.Cancel(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			slog.Warn("failed to cancel stale session", "session_id", id, "error", err)
		}
	}
	return stale
}

// Shutdown cancels every session and waits for them to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, r := range m.sessions {
		r.cancel()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every started session has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
