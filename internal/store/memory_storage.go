package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStorage is an in-process Storage used by tests and single-instance
// deployments that run without redis. Values are stored as JSON copies so
// callers never share memory with the store.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) {
		delete(s.entries, key)
		return ErrNotFound
	}
	return json.Unmarshal(entry.data, val)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	entry := &memoryEntry{data: data}
	if expiresIn > 0 {
		entry.expiresAt = time.Now().Add(expiresIn)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *MemoryStorage) Save(ctx context.Context, key string, val any) error {
	return s.Set(ctx, key, val, -1)
}

// Delete reports ErrNotFound if the key is absent or already expired, which
// gives single-use token consumers the same check-and-delete atomicity as the
// redis implementation.
func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) {
		delete(s.entries, key)
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok {
		entry.expiresAt = expiresAt
	}
	return nil
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*memoryEntry),
	}
}
