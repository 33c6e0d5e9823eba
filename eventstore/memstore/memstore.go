// Package memstore is a reference Event Store implementation: an
// append-only, mutex-guarded log with a sequence-point cursor, used both
// as the default production store and as the short-lived store
// reconciliation opens to guarantee its events are observed first (spec
// §4.5, §5).
package memstore

import (
	"context"
	"sync"
	"time"

	esapi "github.com/distcache/lls/eventstore/api"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// Store is an in-memory, single-process Event Store.
type Store struct {
	mu       sync.Mutex
	consumer esapi.Consumer
	log      []esapi.Event
	next     esapi.SequencePoint
	producing bool
	suspendCount int
}

// New constructs a Store that dispatches every appended event to consumer
// synchronously (as if a downstream applier consumed it immediately).
func New(consumer esapi.Consumer) *Store {
	return &Store{consumer: consumer, next: 1}
}

var _ esapi.Store = (*Store)(nil)

// StartProcessing implements esapi.Store.
func (s *Store) StartProcessing(_ context.Context, from esapi.SequencePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.producing = true
	if from > s.next {
		s.next = from
	}
	return nil
}

// SuspendProcessing implements esapi.Store. It records that production is
// suspended, but this store never consults that state: AddLocations,
// RemoveLocations and Touch keep appending and dispatching after it is
// called. Only PauseSending suppresses them.
func (s *Store) SuspendProcessing(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.producing = false
	return nil
}

func (s *Store) append(ev esapi.Event) esapi.SequencePoint {
	ev.SequencePoint = s.next
	s.next++
	s.log = append(s.log, ev)
	return ev.SequencePoint
}

// AddLocations implements esapi.Store.
func (s *Store) AddLocations(ctx context.Context, machineID machine.ID, items []esapi.HashSize, touch bool) error {
	now := time.Now()
	s.mu.Lock()
	if s.suspendCount > 0 {
		s.mu.Unlock()
		return nil
	}
	s.append(esapi.Event{Kind: esapi.KindLocationAdded, Machine: machineID, Now: now, Added: items})
	s.mu.Unlock()

	if err := s.consumer.LocationAdded(ctx, machineID, items, now); err != nil {
		return err
	}
	if touch {
		hashes := make([]hash.ContentHash, len(items))
		for i, it := range items {
			hashes[i] = it.Hash
		}
		return s.consumer.ContentTouched(ctx, machineID, hashes, now)
	}
	return nil
}

// RemoveLocations implements esapi.Store.
func (s *Store) RemoveLocations(ctx context.Context, machineID machine.ID, items []hash.ContentHash) error {
	s.mu.Lock()
	if s.suspendCount > 0 {
		s.mu.Unlock()
		return nil
	}
	s.append(esapi.Event{Kind: esapi.KindLocationRemoved, Machine: machineID, Now: time.Now(), Removed: items})
	s.mu.Unlock()

	return s.consumer.LocationRemoved(ctx, machineID, items)
}

// Touch implements esapi.Store.
func (s *Store) Touch(ctx context.Context, machineID machine.ID, items []hash.ContentHash, now time.Time) error {
	s.mu.Lock()
	if s.suspendCount > 0 {
		s.mu.Unlock()
		return nil
	}
	s.append(esapi.Event{Kind: esapi.KindContentTouched, Machine: machineID, Now: now, Touched: items})
	s.mu.Unlock()

	return s.consumer.ContentTouched(ctx, machineID, items, now)
}

// Reconcile implements esapi.Store.
func (s *Store) Reconcile(ctx context.Context, machineID machine.ID, added []esapi.HashSize, removed []hash.ContentHash) error {
	now := time.Now()
	s.mu.Lock()
	s.append(esapi.Event{Kind: esapi.KindReconcile, Machine: machineID, Now: now, Added: added, Removed: removed})
	s.mu.Unlock()

	if len(added) > 0 {
		if err := s.consumer.LocationAdded(ctx, machineID, added, now); err != nil {
			return err
		}
	}
	if len(removed) > 0 {
		if err := s.consumer.LocationRemoved(ctx, machineID, removed); err != nil {
			return err
		}
	}
	return nil
}

type pauseToken struct {
	s        *Store
	released bool
}

func (p *pauseToken) Release() {
	if p.released {
		return
	}
	p.released = true
	p.s.mu.Lock()
	p.s.suspendCount--
	p.s.mu.Unlock()
}

// PauseSending implements esapi.Store. Each call increments a counter so
// nested pauses compose; Release decrements it, and the caller must call
// Release exactly once per PauseSending call on every exit path.
func (s *Store) PauseSending(_ context.Context) (esapi.PauseToken, error) {
	s.mu.Lock()
	s.suspendCount++
	s.mu.Unlock()
	return &pauseToken{s: s}, nil
}

// LastProcessedSequencePoint implements esapi.Store.
func (s *Store) LastProcessedSequencePoint(_ context.Context) (esapi.SequencePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.log) == 0 {
		return esapi.Zero, nil
	}
	return s.log[len(s.log)-1].SequencePoint, nil
}

// Events returns a copy of the events appended so far, for tests and for
// checkpoint creation bookkeeping.
func (s *Store) Events() []esapi.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]esapi.Event, len(s.log))
	copy(out, s.log)
	return out
}
