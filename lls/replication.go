package lls

import (
	"context"
	"sort"
	"time"

	"github.com/distcache/lls/eviction"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// runProactiveReplication implements spec §4.6. At most one replication
// task is ever in flight: starting a new one cancels whatever prior one
// was running, serialized by a lock around the cancellation-token handoff
// (spec §5 "proactive-replication token").
func (c *Core) runProactiveReplication(ctx context.Context) {
	replCtx, cancel := context.WithCancel(ctx)

	c.replMu.Lock()
	if c.replCancel != nil {
		c.replCancel()
	}
	c.replCancel = cancel
	c.replMu.Unlock()
	defer cancel()

	candidates, err := c.descendingLastAccessCandidates(replCtx)
	if err != nil {
		c.logger.Warn("proactive replication: failed to list candidates", "err", err)
		return
	}

	cfg := eviction.Config{
		EvictionPoolSize:        c.cfg.EvictionPoolSize,
		EvictionWindowSize:      c.cfg.EvictionWindowSize,
		EvictionRemovalFraction: c.cfg.EvictionRemovalFraction,
		EvictionDiscardFraction: c.cfg.EvictionDiscardFraction,
		EvictionMinAge:          c.cfg.EvictionMinAge,
		ContentLifetime:         c.cfg.ContentLifetime,
		MachineRisk:             c.cfg.MachineRisk,
	}
	stream := eviction.GetHashesInEvictionOrder(candidates, c.evictionLookup, cfg, true)

	outcomes := 0
	for outcomes < c.cfg.ProactiveReplicationCopyLimit {
		select {
		case <-replCtx.Done():
			return
		default:
		}

		cand, ok, err := stream.Next(replCtx)
		if err != nil || !ok {
			return
		}

		entry, err := c.deps.ContentDB.Get(replCtx, cand.Hash)
		if err != nil {
			continue
		}
		if entry.IsMissing() || entry.Locations.Count() >= c.cfg.ProactiveCopyLocationsThreshold {
			continue
		}

		target, ok := c.pickReplicationTarget(entry.Locations)
		if !ok {
			continue
		}

		if err := c.deps.CopyFunc(replCtx, cand.Hash, target); err != nil {
			c.logger.Warn("proactive replication copy failed", "hash", cand.Hash.String(), "err", err)
		}
		outcomes++

		select {
		case <-replCtx.Done():
			return
		case <-time.After(c.cfg.DelayForProactiveReplication):
		}
	}
}

// descendingLastAccessCandidates lists local candidates in descending
// last-access order (newest first), the input eviction's reverse=true
// ordering expects for replication (spec §4.6: "newest-evictable first =
// best replication targets last used"). The content location database
// only offers ordered-by-hash enumeration, so this does a full scan and
// sorts by last access explicitly.
func (c *Core) descendingLastAccessCandidates(ctx context.Context) ([]eviction.Candidate, error) {
	var out []eviction.Candidate
	err := c.deps.ContentDB.IterateOrdered(ctx, machine.ID(c.cfg.LocalMachineID), hash.ShortHash{}, func(h hash.ContentHash, _ uint64, lastAccess time.Time) (bool, error) {
		out = append(out, eviction.Candidate{Hash: h, LocalLastAccess: lastAccess})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalLastAccess.After(out[j].LocalLastAccess) })
	return out, nil
}

// pickReplicationTarget picks a machine that does not already hold the
// replica to hand to CopyFunc as the destination.
func (c *Core) pickReplicationTarget(locations *machine.BitSet) (machine.ID, bool) {
	known, _ := c.deps.ClusterState.MaxMachineID()
	for id := machine.ID(0); id <= known; id++ {
		if id == machine.ID(c.cfg.LocalMachineID) {
			continue
		}
		if locations.Contains(id) {
			continue
		}
		if c.deps.ClusterState.IsActive(id) {
			return id, true
		}
	}
	return 0, false
}
