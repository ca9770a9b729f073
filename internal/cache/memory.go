package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	entry   Entry
	expires time.Time
}

// Memory is an in-process Store, used when no Redis address is configured.
type Memory struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memEntry
	gens  map[string]int64
}

// NewMemory returns a Memory store; ttl <= 0 keeps entries until overwritten.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]memEntry),
		gens:  make(map[string]int64),
	}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if !it.expires.IsZero() && !m.now().Before(it.expires) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	e := it.entry
	e.Body = append([]byte(nil), it.entry.Body...)
	return e, true, nil
}

func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	e.Body = append([]byte(nil), e.Body...)
	it := memEntry{entry: e}
	if m.ttl > 0 {
		it.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return nil
}

func (m *Memory) Generation(_ context.Context, scope string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gens[scope], nil
}

func (m *Memory) Bump(_ context.Context, scope string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[scope]++
	return m.gens[scope], nil
}

// Sweep drops expired entries.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, it := range m.items {
		if !it.expires.IsZero() && !now.Before(it.expires) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *Memory) Close() error { return nil }
