package state

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionTTL is how long an idle session keeps its values.
const DefaultSessionTTL = 24 * time.Hour

type memoryEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

// MemoryStorage keeps session values in process memory. Values are lost on
// restart. Every write extends the session by the TTL.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStorage creates an in-memory Storage. A ttl <= 0 uses DefaultSessionTTL.
func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStorage{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements Storage.
func (s *MemoryStorage) Get(ctx context.Context, key, field string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.expiresAt) {
		return "", false, nil
	}
	value, ok := entry.fields[field]
	return value, ok, nil
}

// Set implements Storage.
func (s *MemoryStorage) Set(ctx context.Context, key, field, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &memoryEntry{fields: make(map[string]string)}
		s.entries[key] = entry
	}
	entry.fields[field] = value
	entry.expiresAt = now.Add(s.ttl)
	return nil
}

// Cleanup drops expired sessions and returns how many were removed.
func (s *MemoryStorage) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of sessions held, expired or not.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
