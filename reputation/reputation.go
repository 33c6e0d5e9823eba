// Package reputation tracks a per-machine score used to order candidate
// locations returned to callers (spec §2 component H).
package reputation

import (
	"sort"
	"sync"

	"github.com/distcache/lls/machine"
)

// Tracker holds a per-machine reputation score. Higher is better; unknown
// machines default to zero.
type Tracker struct {
	mu     sync.RWMutex
	scores map[machine.ID]float64
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{scores: make(map[machine.ID]float64)}
}

// Score returns id's current score (0 if never recorded).
func (t *Tracker) Score(id machine.ID) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scores[id]
}

// Record sets id's score, e.g. after observing a successful or failed
// transfer to/from it.
func (t *Tracker) Record(id machine.ID, score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scores[id] = score
}

// Observe nudges id's score by delta (positive for a good outcome,
// negative for a bad one), the incremental counterpart to Record.
func (t *Tracker) Observe(id machine.ID, delta float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scores[id] += delta
}

// Order sorts ids by descending reputation score, highest (best) first,
// stable so callers passing pre-shuffled input get deterministic
// tie-breaking behavior from the shuffle rather than from map iteration.
func (t *Tracker) Order(ids []machine.ID) []machine.ID {
	t.mu.RLock()
	scores := make(map[machine.ID]float64, len(ids))
	for _, id := range ids {
		scores[id] = t.scores[id]
	}
	t.mu.RUnlock()

	out := make([]machine.ID, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i]] > scores[out[j]]
	})
	return out
}
