package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/dqtran/medauth/params"
)

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounterStore keeps the window counters in process. The check and the
// increment happen under one lock, never as a read-then-write pair. Expired
// counters are swept opportunistically so memory stays bounded by the live
// window population.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	ops      int
}

func (s *MemoryCounterStore) Consume(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops++
	if s.ops >= params.RateLimitSweepEvery {
		s.ops = 0
		s.sweep(now)
	}

	counter, ok := s.counters[key]
	if !ok || now.After(counter.expiresAt) {
		counter = &memoryCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = counter
	}
	if counter.count >= limit {
		return counter.count, false, nil
	}
	counter.count++
	return counter.count, true, nil
}

func (s *MemoryCounterStore) sweep(now time.Time) {
	for key, counter := range s.counters {
		if now.After(counter.expiresAt) {
			delete(s.counters, key)
		}
	}
}

// Len reports the number of retained counters, expired ones included.
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: make(map[string]*memoryCounter),
	}
}
