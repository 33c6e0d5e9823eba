// Package volatile implements time-expiring hash membership sets: the
// recently-added, recently-touched, and recently-removed sets the
// registration policy consults (spec §2 component A, §4.2, §9). The shape
// is grounded on coredhcp's transient lease store: a map of pointers
// behind a key lock, with per-entry state updated without holding that
// lock.
package volatile

import (
	"sync"
	"time"

	"github.com/distcache/lls/hash"
)

// Set is a time-indexed membership set: entries auto-expire TTL after
// being added.
type Set struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[hash.ContentHash]time.Time
}

// NewSet constructs a Set whose entries expire ttl after insertion.
func NewSet(ttl time.Duration) *Set {
	return &Set{ttl: ttl, entries: make(map[hash.ContentHash]time.Time)}
}

// Add records h as present as of now.
func (s *Set) Add(h hash.ContentHash, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[h] = now.Add(s.ttl)
}

// Contains reports whether h is present and not yet expired as of now.
func (s *Set) Contains(h hash.ContentHash, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.entries[h]
	return ok && now.Before(exp)
}

// Invalidate removes h unconditionally, regardless of expiry.
func (s *Set) Invalidate(h hash.ContentHash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, h)
}

// Sweep drops every entry that has expired as of now, bounding the set's
// memory footprint. It is safe to call periodically from a background
// task; Add/Contains/Invalidate never need it for correctness.
func (s *Set) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, h)
		}
	}
}

// Len reports the number of entries currently tracked (including any not
// yet swept past expiry).
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
