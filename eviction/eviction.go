// Package eviction computes the age-adjusted "effective last access" score
// used to order eviction candidates, and streams candidates through a
// two-pointer approximate sort rather than materializing a full sort of
// the entire local content inventory (spec §4.7, §2 component J).
package eviction

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/distcache/lls/hash"
)

// Config holds the tuning knobs from spec §6 that govern eviction
// ordering.
type Config struct {
	EvictionPoolSize      int
	EvictionWindowSize    int
	EvictionRemovalFraction float64
	EvictionDiscardFraction float64
	EvictionMinAge          time.Duration
	ContentLifetime         time.Duration
	MachineRisk             float64
}

// Candidate is a single eviction candidate as handed in by the caller
// (spec §4.7's "given per-hash {hash, localLastAccess}").
type Candidate struct {
	Hash            hash.ContentHash
	LocalLastAccess time.Time
}

// DBLookup resolves a candidate's current size, last-access time and
// replica count from the content location database, used to compute its
// effective last access.
type DBLookup func(ctx context.Context, h hash.ContentHash) (size uint64, dbLastAccess time.Time, replicaCount int, err error)

// EffectiveLastAccess computes the age-adjusted evictability score (spec
// §4.7): under an exponential-decay recall model and per-replica
// independent unavailability, minimizing this quantity minimizes
// Pr(want AND all replicas unreachable) per byte freed.
func EffectiveLastAccess(localLastAccess, dbLastAccess time.Time, size uint64, replicaCount int, cfg Config) time.Time {
	r := replicaCount
	if r < 1 {
		r = 1
	}
	s := size
	if s < 1 {
		s = 1
	}

	base := localLastAccess
	if dbLastAccess.After(base) {
		base = dbLastAccess
	}

	risk := cfg.MachineRisk
	if risk <= 0 {
		risk = math.SmallestNonzeroFloat64
	}
	if risk > 1 {
		risk = 1
	}

	penalty := float64(r)*(-math.Log(risk)) + math.Log(float64(s))
	offset := time.Duration(float64(cfg.ContentLifetime) * penalty)
	return base.Add(-offset)
}

type scored struct {
	cand Candidate
	eff  time.Time
}

// less reports whether a sorts before b under the configured direction:
// ascending effectiveLastAccess normally, descending if reverse.
func less(a, b scored, reverse bool) bool {
	if reverse {
		return b.eff.Before(a.eff)
	}
	return a.eff.Before(b.eff)
}

// half is the lazy, paged, pool-bounded approximate sort over one half of
// the input (spec §4.7 "two-pointer approximate sort").
type half struct {
	candidates []Candidate
	pos        int
	lookup     DBLookup
	cfg        Config
	reverse    bool

	pool    []scored
	emitBuf []scored
}

func newHalf(candidates []Candidate, lookup DBLookup, cfg Config, reverse bool) *half {
	return &half{candidates: candidates, lookup: lookup, cfg: cfg, reverse: reverse}
}

func ceilFrac(n int, frac float64) int {
	if frac <= 0 {
		return 0
	}
	if frac >= 1 {
		return n
	}
	return int(math.Ceil(float64(n) * frac))
}

func (h *half) fillAndStep(ctx context.Context) error {
	windowSize := h.cfg.EvictionWindowSize
	if windowSize <= 0 {
		windowSize = 256
	}
	poolSize := h.cfg.EvictionPoolSize
	if poolSize <= 0 {
		poolSize = windowSize
	}

	for len(h.pool) < poolSize && h.pos < len(h.candidates) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := h.pos + windowSize
		if end > len(h.candidates) {
			end = len(h.candidates)
		}
		for _, c := range h.candidates[h.pos:end] {
			size, dbLastAccess, replicas, err := h.lookup(ctx, c.Hash)
			if err != nil {
				return err
			}
			eff := EffectiveLastAccess(c.LocalLastAccess, dbLastAccess, size, replicas, h.cfg)
			h.pool = append(h.pool, scored{cand: c, eff: eff})
		}
		h.pos = end
	}

	if len(h.pool) == 0 {
		return nil
	}

	sort.Slice(h.pool, func(i, j int) bool { return less(h.pool[i], h.pool[j], h.reverse) })

	removalCount := ceilFrac(len(h.pool), h.cfg.EvictionRemovalFraction)
	if removalCount == 0 {
		removalCount = 1
	}
	if removalCount > len(h.pool) {
		removalCount = len(h.pool)
	}
	h.emitBuf = append(h.emitBuf, h.pool[:removalCount]...)

	remaining := h.pool[removalCount:]
	discardCount := ceilFrac(len(remaining), h.cfg.EvictionDiscardFraction)
	if discardCount > len(remaining) {
		discardCount = len(remaining)
	}
	kept := remaining[:len(remaining)-discardCount]
	h.pool = append([]scored(nil), kept...)

	return nil
}

// next returns the next candidate from this half in approximate sorted
// order, or ok=false once the half is exhausted.
func (h *half) next(ctx context.Context) (scored, bool, error) {
	for len(h.emitBuf) == 0 {
		if h.pos >= len(h.candidates) && len(h.pool) == 0 {
			return scored{}, false, nil
		}
		if err := h.fillAndStep(ctx); err != nil {
			return scored{}, false, err
		}
		if len(h.emitBuf) == 0 && h.pos >= len(h.candidates) && len(h.pool) == 0 {
			return scored{}, false, nil
		}
	}
	out := h.emitBuf[0]
	h.emitBuf = h.emitBuf[1:]
	return out, true, nil
}

// Stream is the lazy sequence of eviction candidates returned by
// GetHashesInEvictionOrder.
type Stream struct {
	a, b    *half
	bufA    *scored
	bufB    *scored
	haveA   bool
	haveB   bool
	reverse bool
	minAge  time.Duration
	now     func() time.Time
}

// GetHashesInEvictionOrder returns a lazy, approximately-sorted stream of
// candidates (spec §4.7). Candidates are split by median index into two
// halves, each independently approximately sorted, then merged under the
// same comparator. Only candidates older than EvictionMinAge are emitted.
func GetHashesInEvictionOrder(candidates []Candidate, lookup DBLookup, cfg Config, reverse bool) *Stream {
	mid := len(candidates) / 2
	return &Stream{
		a:       newHalf(candidates[:mid], lookup, cfg, reverse),
		b:       newHalf(candidates[mid:], lookup, cfg, reverse),
		reverse: reverse,
		minAge:  cfg.EvictionMinAge,
		now:     time.Now,
	}
}

func (s *Stream) fillSide(ctx context.Context) error {
	if !s.haveA {
		v, ok, err := s.a.next(ctx)
		if err != nil {
			return err
		}
		if ok {
			s.bufA = &v
		}
		s.haveA = true
	}
	if !s.haveB {
		v, ok, err := s.b.next(ctx)
		if err != nil {
			return err
		}
		if ok {
			s.bufB = &v
		}
		s.haveB = true
	}
	return nil
}

// Next pulls the next eviction candidate, or ok=false once the stream is
// exhausted. It respects ctx cancellation between pulls (spec §5
// "cooperative checks at each loop iteration").
func (s *Stream) Next(ctx context.Context) (Candidate, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return Candidate{}, false, ctx.Err()
		default:
		}

		if err := s.fillSide(ctx); err != nil {
			return Candidate{}, false, err
		}

		var pick scored
		var fromA bool
		switch {
		case s.bufA == nil && s.bufB == nil:
			return Candidate{}, false, nil
		case s.bufA == nil:
			pick, fromA = *s.bufB, false
		case s.bufB == nil:
			pick, fromA = *s.bufA, true
		case less(*s.bufA, *s.bufB, s.reverse):
			pick, fromA = *s.bufA, true
		default:
			pick, fromA = *s.bufB, false
		}

		if fromA {
			s.bufA = nil
			s.haveA = false
		} else {
			s.bufB = nil
			s.haveB = false
		}

		if s.minAge > 0 && s.now().Sub(pick.eff) < s.minAge {
			continue
		}
		return pick.cand, true, nil
	}
}
