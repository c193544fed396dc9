package resultcache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend keeps entries in process. Expired entries are removed when
// they are next read or invalidated.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     Clock
}

// NewMemoryBackend creates an empty in-process backend. A nil clock uses
// time.Now.
func NewMemoryBackend(now Clock) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: now}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if expired(e.expiresAt, m.now()) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && expired(cur.expiresAt, m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: v, expiresAt: expiry(m.now(), ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Invalidate(_ context.Context, pattern string) (int, error) {
	re, err := CompileGlob(pattern)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.entries {
		if re.MatchString(key) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// Purge removes every expired entry.
func (m *MemoryBackend) Purge(_ context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, e := range m.entries {
		if expired(e.expiresAt, now) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryBackend) Close() error { return nil }
