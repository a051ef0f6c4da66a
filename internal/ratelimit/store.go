// Package ratelimit throttles clients per endpoint class with a sliding window,
// and applies a looser token bucket to general traffic.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store records admitted requests per key within a trailing window.
type Store interface {
	// Allow evicts timestamps at or before now-window, then admits and records now
	// when fewer than limit remain.
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error)
	// Reset forgets every timestamp recorded for key.
	Reset(ctx context.Context, key string) error
}

// MemoryStore keeps windows in process memory. State is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]time.Time)}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := evict(s.windows[key], now.Add(-window))
	if len(kept) >= limit {
		s.windows[key] = kept
		return false, nil
	}
	s.windows[key] = append(kept, now)
	return true, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.windows, key)
	s.mu.Unlock()
	return nil
}

// Prune drops keys whose newest timestamp is older than maxWindow.
func (s *MemoryStore) Prune(now time.Time, maxWindow time.Duration) int {
	cutoff := now.Add(-maxWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, stamps := range s.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// stamps are kept in ascending order, so the first survivor ends the scan.
func evict(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}
