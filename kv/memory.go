package kv

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxMarkTTL bounds how long an evicted-by-LRU marker could at most live;
// the exact per-key deadline is still checked on every read.
const maxMarkTTL = 24 * time.Hour

const markCacheSize = 4096

// MemoryStore is an in-process Store used in tests and in single-process
// runs without Redis. Counters live in a plain map; markers live in an
// expirable LRU keyed by their own deadline.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
	marks    *expirable.LRU[string, time.Time]
	now      func() time.Time
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]int64),
		marks:    expirable.NewLRU[string, time.Time](markCacheSize, nil, maxMarkTTL),
		now:      time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *MemoryStore) GetInt(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.counters, key)
		s.marks.Remove(key)
	}
	return nil
}

// SetMark stores a marker that Exists reports until the TTL passes. The
// underlying cache expires entries after maxMarkTTL, so longer TTLs are
// clamped to that bound rather than silently cut short on read.
func (s *MemoryStore) SetMark(_ context.Context, key string, ttl time.Duration) error {
	if ttl > maxMarkTTL {
		ttl = maxMarkTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks.Add(key, s.now().Add(ttl))
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[key]; ok {
		return true, nil
	}
	deadline, ok := s.marks.Get(key)
	if !ok {
		return false, nil
	}
	if !s.now().Before(deadline) {
		s.marks.Remove(key)
		return false, nil
	}
	return true, nil
}
