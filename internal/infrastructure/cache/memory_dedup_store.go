// Package cache provides the dedup window stores behind
// shared.IdempotencyStore: an in-process map and a Redis store shared by
// every terminal.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cassa/backend/internal/domain/shared"
)

// MemoryDedupStore keeps dedup keys in a map until their window expires.
// It only deduplicates within one process.
type MemoryDedupStore struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	now       func() time.Time
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryDedupStore creates a store that sweeps expired keys every
// sweepInterval (one minute when zero).
func NewMemoryDedupStore(sweepInterval time.Duration) *MemoryDedupStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &MemoryDedupStore{
		expiry: make(map[string]time.Time),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop(sweepInterval)
	return s
}

// MarkProcessed implements shared.IdempotencyStore
func (s *MemoryDedupStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.expiry[key]; ok && now.Before(until) {
		return false, nil
	}
	s.expiry[key] = now.Add(ttl)
	return true, nil
}

// IsProcessed implements shared.IdempotencyStore
func (s *MemoryDedupStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.expiry[key]
	return ok && s.now().Before(until), nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryDedupStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// Len returns the number of stored keys, expired ones included
func (s *MemoryDedupStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *MemoryDedupStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryDedupStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, until := range s.expiry {
		if !now.Before(until) {
			delete(s.expiry, key)
		}
	}
}

var _ shared.IdempotencyStore = (*MemoryDedupStore)(nil)
