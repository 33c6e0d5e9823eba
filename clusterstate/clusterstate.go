// Package clusterstate maintains the in-memory MachineId <-> MachineLocation
// mapping, active/inactive bits and monotonic MaxMachineId watermark
// (spec §2 component B). It is shared read-mostly; writes are serialized
// through the LLS core.
package clusterstate

import (
	"sync"
	"time"

	"github.com/distcache/lls/common/logging"
	"github.com/distcache/lls/machine"
)

// Entry is a single machine's cluster-state record.
type Entry struct {
	Location machine.Location
	Active   bool
	// LastInactiveTime is the last time this machine was observed inactive,
	// used by the registration policy's "recent inactivity" window (§4.2
	// rule 2).
	LastInactiveTime time.Time
}

// State holds the cluster's machine directory.
type State struct {
	mu  sync.RWMutex
	log *logging.Logger

	machines  map[machine.ID]*Entry
	maxID     machine.ID
	haveMaxID bool
}

// New constructs an empty cluster state.
func New() *State {
	return &State{
		log:      logging.GetLogger("clusterstate"),
		machines: make(map[machine.ID]*Entry),
	}
}

// Resolve returns the location for id, and whether it is known.
func (s *State) Resolve(id machine.ID) (machine.Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.machines[id]
	if !ok {
		return "", false
	}
	return e.Location, true
}

// IsActive reports whether id is currently marked active. Unknown ids are
// reported inactive.
func (s *State) IsActive(id machine.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.machines[id]
	return ok && e.Active
}

// LastInactiveTime returns the last time id was observed inactive, and
// whether it has ever been observed inactive at all.
func (s *State) LastInactiveTime(id machine.ID) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.machines[id]
	if !ok || e.LastInactiveTime.IsZero() {
		return time.Time{}, false
	}
	return e.LastInactiveTime, true
}

// MaxMachineID returns the highest machine id ever observed, and whether
// any machine has been observed at all.
func (s *State) MaxMachineID() (machine.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxID, s.haveMaxID
}

// Upsert records id's location and active bit. It is the only mutating
// entry point; it is always called with writes serialized through the LLS
// core (never concurrently from two goroutines for the same cluster
// state).
func (s *State) Upsert(id machine.ID, loc machine.Location, active bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.machines[id]
	if !ok {
		e = &Entry{}
		s.machines[id] = e
	}
	e.Location = loc
	if !active && e.Active {
		e.LastInactiveTime = now
	}
	e.Active = active

	if !s.haveMaxID || id > s.maxID {
		s.maxID = id
		s.haveMaxID = true
	}
}

// MarkActive records that a message was just received from id, per §4.8
// ("every incoming event also marks the sender active in Cluster State").
func (s *State) MarkActive(id machine.ID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.machines[id]
	if !ok {
		e = &Entry{Active: true}
		s.machines[id] = e
	} else {
		e.Active = true
	}
	if !s.haveMaxID || id > s.maxID {
		s.maxID = id
		s.haveMaxID = true
	}
}

// Snapshot is the wire-shape used to persist cluster state to the local DB
// and to publish it to the Global Store (§4.3 step 5).
type Snapshot struct {
	Machines map[machine.ID]Entry
	MaxID    machine.ID
}

// Snapshot returns a point-in-time copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Machines: make(map[machine.ID]Entry, len(s.machines)), MaxID: s.maxID}
	for id, e := range s.machines {
		out.Machines[id] = *e
	}
	return out
}

// Restore replaces the state wholesale from a previously taken Snapshot,
// e.g. when refreshing from the local DB at startup.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines = make(map[machine.ID]*Entry, len(snap.Machines))
	for id, e := range snap.Machines {
		cp := e
		s.machines[id] = &cp
	}
	s.maxID = snap.MaxID
	s.haveMaxID = len(snap.Machines) > 0 || s.maxID > 0
}
