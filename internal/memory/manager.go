package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// FlushObserver receives the outcome of every flush.
type FlushObserver interface {
	ObserveMemoryFlush(d time.Duration, err error)
}

// ManagerOptions tunes a Manager. Zero values fall back to defaults.
type ManagerOptions struct {
	Retention int
	Logger    *slog.Logger
	Observer  FlushObserver
}

// Manager owns the in-memory view of every user's conversation log and keeps
// the backing Store in sync. Appends for one user are serialised; appends for
// different users only share the flush section.
type Manager struct {
	store     Store
	retention int
	logger    *slog.Logger
	observer  FlushObserver

	mu   sync.RWMutex
	logs map[string][]Message

	// One lock per user ever recorded, kept for the life of the process.
	// Growth tracks logs, which holds every user's history anyway.
	locksMu   sync.Mutex
	userLocks map[string]*sync.Mutex

	flushMu sync.Mutex
}

func NewManager(store Store, opts ManagerOptions) *Manager {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store:     store,
		retention: opts.Retention,
		logger:    opts.Logger,
		observer:  opts.Observer,
		logs:      make(map[string][]Message),
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Load hydrates the manager from the store. A store that cannot be read is
// logged and treated as holding no prior memory; Load never fails startup.
func (m *Manager) Load(ctx context.Context) {
	snapshot, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("memory store unreadable, starting with empty memory", "error", err)
		snapshot = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = make(map[string][]Message, len(snapshot))
	for userID, log := range snapshot {
		m.logs[userID] = m.trim(append([]Message(nil), log...))
	}
	m.logger.Info("memory loaded", "users", len(m.logs))
}

// History returns a copy of the user's full log, or an empty log.
func (m *Manager) History(userID string) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message{}, m.logs[userID]...)
}

// RecentContext returns the last window messages for the user, oldest first.
// A non-positive window uses DefaultContextWindow.
func (m *Manager) RecentContext(userID string, window int) []Message {
	if window <= 0 {
		window = DefaultContextWindow
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.logs[userID]
	if window > len(log) {
		window = len(log)
	}
	return append([]Message{}, log[len(log)-window:]...)
}

// Snapshot returns a deep copy of every user's log.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot(m.logs).Clone()
}

// UserCount returns the number of users with stored history.
func (m *Manager) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

// AppendExchange records one user/assistant pair, applies the retention
// window and flushes the whole store before returning. When the flush fails
// the exchange stays in memory and the flush error is returned.
func (m *Manager) AppendExchange(ctx context.Context, userID string, userMsg, assistantMsg Message) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	log := append(append([]Message(nil), m.logs[userID]...), userMsg, assistantMsg)
	log = m.trim(log)
	m.logs[userID] = log
	count := len(log)
	m.mu.Unlock()

	m.logger.Debug("exchange stored", "user_id", userID, "messages", count)

	if err := m.Flush(ctx); err != nil {
		return err
	}
	return nil
}

// Flush writes the current state of every log to the store.
func (m *Manager) Flush(ctx context.Context) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	snapshot := m.Snapshot()
	start := time.Now()
	err := m.store.Save(ctx, snapshot)
	if m.observer != nil {
		m.observer.ObserveMemoryFlush(time.Since(start), err)
	}
	if err != nil {
		m.logger.Error("memory flush failed", "error", err, "users", len(snapshot))
		return fmt.Errorf("flush memory: %w", err)
	}
	return nil
}

func (m *Manager) trim(log []Message) []Message {
	if len(log) <= m.retention {
		return log
	}
	return append([]Message(nil), log[len(log)-m.retention:]...)
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.userLocks[userID] = l
	}
	return l
}
