package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	expiry  time.Duration
	now     func() time.Time
}

// NewMemory creates a store whose entries expire after expiry (DefaultExpiry
// when zero).
func NewMemory(expiry time.Duration) *Memory {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Memory{
		entries: make(map[string]Entry),
		expiry:  expiry,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	now := m.now()
	m.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}
	if !entry.Valid(now, m.expiry) {
		m.mu.Lock()
		if current, still := m.entries[key]; still && current.Timestamp.Equal(entry.Timestamp) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (m *Memory) Set(_ context.Context, key string, data json.RawMessage) error {
	m.mu.Lock()
	m.entries[key] = Entry{Data: append(json.RawMessage(nil), data...), Timestamp: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
