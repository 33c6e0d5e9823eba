package lls

import (
	"context"
	"time"

	"github.com/distcache/lls/eviction"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// GetHashesInEvictionOrder implements spec §4.1
// get_hashes_in_eviction_order: a lazy stream of this machine's local
// content, ordered by effective-last-access (spec §4.7).
func (c *Core) GetHashesInEvictionOrder(ctx context.Context, reverse bool) (*eviction.Stream, error) {
	if err := c.awaitPostInit(ctx); err != nil {
		return nil, err
	}

	var candidates []eviction.Candidate
	err := c.deps.ContentDB.IterateOrdered(ctx, machine.ID(c.cfg.LocalMachineID), hash.ShortHash{}, func(h hash.ContentHash, _ uint64, lastAccess time.Time) (bool, error) {
		candidates = append(candidates, eviction.Candidate{Hash: h, LocalLastAccess: lastAccess})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	llsEvictionCandidates.WithLabelValues(c.machineLabel()).Set(float64(len(candidates)))

	cfg := eviction.Config{
		EvictionPoolSize:        c.cfg.EvictionPoolSize,
		EvictionWindowSize:      c.cfg.EvictionWindowSize,
		EvictionRemovalFraction: c.cfg.EvictionRemovalFraction,
		EvictionDiscardFraction: c.cfg.EvictionDiscardFraction,
		EvictionMinAge:          c.cfg.EvictionMinAge,
		ContentLifetime:         c.cfg.ContentLifetime,
		MachineRisk:             c.cfg.MachineRisk,
	}
	return eviction.GetHashesInEvictionOrder(candidates, c.evictionLookup, cfg, reverse), nil
}
