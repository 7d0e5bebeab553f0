package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/aman-churiwal/projectguard/internal/models"
)

type memoryEntry struct {
	mu     sync.Mutex
	window *models.RateLimitWindow
	refs   int // callers holding or waiting on mu, guarded by MemoryStore.mu
}

// MemoryStore keeps windows in process memory with one mutex per key.
// It is meant for tests and single-instance development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]*memoryEntry),
	}
}

// acquire pins the entry for key so DeleteBefore cannot drop it until release
func (m *MemoryStore) acquire(key Key) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *MemoryStore) release(e *memoryEntry) {
	m.mu.Lock()
	e.refs--
	m.mu.Unlock()
}

func (m *MemoryStore) Atomic(ctx context.Context, key Key, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := m.acquire(key)
	defer m.release(e)

	e.mu.Lock()
	defer e.mu.Unlock()

	return fn(&memoryTx{key: key, entry: e})
}

// Only entries no caller has pinned are examined. The window of an unpinned
// entry was last written before its holder released it under m.mu.
func (m *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key, e := range m.entries {
		if e.refs > 0 {
			continue
		}
		if e.window == nil || e.window.WindowStart.Before(cutoff) {
			delete(m.entries, key)
			if e.window != nil {
				deleted++
			}
		}
	}

	return deleted, nil
}

// Returns a copy of the stored window, nil when absent
func (m *MemoryStore) Window(key Key) *models.RateLimitWindow {
	e := m.acquire(key)
	defer m.release(e)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.window == nil {
		return nil
	}
	w := *e.window
	return &w
}

// Overwrites the window start of an existing window
func (m *MemoryStore) SetWindowStart(key Key, start time.Time) {
	e := m.acquire(key)
	defer m.release(e)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.window != nil {
		e.window.WindowStart = start
	}
}

// Inserts a window directly
func (m *MemoryStore) Put(key Key, count int, start time.Time) {
	e := m.acquire(key)
	defer m.release(e)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.window = &models.RateLimitWindow{
		UserID:       key.UserID,
		Endpoint:     key.Endpoint,
		ProjectID:    key.ProjectID,
		RequestCount: count,
		WindowStart:  start,
	}
}

type memoryTx struct {
	key   Key
	entry *memoryEntry
}

func (t *memoryTx) Get(ctx context.Context) (*models.RateLimitWindow, error) {
	if t.entry.window == nil {
		return nil, nil
	}
	w := *t.entry.window
	return &w, nil
}

func (t *memoryTx) Reset(ctx context.Context, now time.Time) error {
	t.entry.window = &models.RateLimitWindow{
		UserID:       t.key.UserID,
		Endpoint:     t.key.Endpoint,
		ProjectID:    t.key.ProjectID,
		RequestCount: 1,
		WindowStart:  now,
	}
	return nil
}

func (t *memoryTx) Increment(ctx context.Context) (int, error) {
	t.entry.window.RequestCount++
	return t.entry.window.RequestCount, nil
}
