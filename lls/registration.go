package lls

import (
	"context"
	"math/rand"
	"time"

	esapi "github.com/distcache/lls/eventstore/api"
	gsapi "github.com/distcache/lls/globalstore/api"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// action is the per-hash registration decision (spec §4.2).
type action int

const (
	actionSkip action = iota
	actionLazyTouchEventOnly
	actionLazyEventOnly
	actionEagerGlobal
	actionEagerGlobalRecentRemove
	actionEagerGlobalRecentInactive
)

func (a action) isEager() bool {
	return a == actionEagerGlobal || a == actionEagerGlobalRecentRemove || a == actionEagerGlobalRecentInactive
}

func (a action) emitsEvent() bool {
	return a != actionSkip
}

func (a action) String() string {
	switch a {
	case actionSkip:
		return "skip"
	case actionLazyTouchEventOnly:
		return "lazy_touch"
	case actionLazyEventOnly:
		return "lazy"
	case actionEagerGlobal:
		return "eager"
	case actionEagerGlobalRecentRemove:
		return "eager_recent_remove"
	case actionEagerGlobalRecentInactive:
		return "eager_recent_inactive"
	default:
		return "unknown"
	}
}

// classify decides the registration action for a single hash, in the
// priority order of spec §4.2.
func (c *Core) classify(ctx context.Context, h hash.ContentHash, now time.Time) (action, error) {
	if c.cfg.SkipRedundantContentLocationAdd && c.recentlyRemoved.Contains(h, now) {
		return actionEagerGlobalRecentRemove, nil
	}

	if last, ok := c.deps.ClusterState.LastInactiveTime(machine.ID(c.cfg.LocalMachineID)); ok {
		window := 5 * c.cfg.RecomputeInactiveMachinesExpiry
		if now.Sub(last) < window {
			return actionEagerGlobalRecentInactive, nil
		}
	}

	if c.cfg.SkipRedundantContentLocationAdd && c.recentlyAdded.Contains(h, now) {
		return actionSkip, nil
	}

	entry, err := c.deps.ContentDB.Get(ctx, h)
	if err != nil {
		return actionSkip, err
	}
	if !entry.IsMissing() && entry.Locations.Contains(machine.ID(c.cfg.LocalMachineID)) {
		if now.Sub(entry.LastAccessUTC) < c.cfg.TouchFrequency {
			return actionSkip, nil
		}
		return actionLazyTouchEventOnly, nil
	}

	if !entry.IsMissing() && entry.Locations.Count() >= c.cfg.SafeToLazilyUpdateMachineCountThreshold {
		return actionLazyEventOnly, nil
	}

	return actionEagerGlobal, nil
}

// RegisterLocalLocation implements spec §4.1 register_local_location.
func (c *Core) RegisterLocalLocation(ctx context.Context, items []HashSize, touch bool) error {
	if err := c.awaitPostInit(ctx); err != nil {
		return err
	}
	now := time.Now()

	var eagerItems []gsapi.HashSize
	var eventItems []esapi.HashSize

	for _, it := range items {
		act, err := c.classify(ctx, it.Hash, now)
		if err != nil {
			return err
		}
		llsRegistrations.WithLabelValues(c.machineLabel(), act.String()).Inc()
		if act.isEager() {
			eagerItems = append(eagerItems, gsapi.HashSize{Hash: it.Hash, Size: it.Size})
		}
		if act.emitsEvent() {
			eventItems = append(eventItems, esapi.HashSize{Hash: it.Hash, Size: it.Size})
		}
	}

	if len(eagerItems) > 0 {
		if err := c.deps.Global.RegisterLocalLocation(ctx, machine.ID(c.cfg.LocalMachineID), eagerItems); err != nil {
			return err
		}
	}
	if len(eventItems) > 0 {
		if err := c.deps.EventStore.AddLocations(ctx, machine.ID(c.cfg.LocalMachineID), eventItems, touch); err != nil {
			return err
		}
		for _, it := range eventItems {
			c.recentlyAdded.Add(it.Hash, now)
			c.recentlyRemoved.Invalidate(it.Hash)
		}
	}
	return nil
}

// TouchBulk implements spec §4.1 touch_bulk.
func (c *Core) TouchBulk(ctx context.Context, hashes []hash.ContentHash) error {
	if err := c.awaitPostInit(ctx); err != nil {
		return err
	}
	now := time.Now()

	var toEmit []hash.ContentHash
	for _, h := range hashes {
		if c.recentlyAdded.Contains(h, now) || c.recentlyTouched.Contains(h, now) {
			continue
		}
		entry, err := c.deps.ContentDB.Get(ctx, h)
		if err != nil {
			return err
		}
		if !entry.IsMissing() && now.Sub(entry.LastAccessUTC) < c.cfg.TouchFrequency {
			continue
		}
		toEmit = append(toEmit, h)
	}
	if len(toEmit) == 0 {
		return nil
	}
	if err := c.deps.EventStore.Touch(ctx, machine.ID(c.cfg.LocalMachineID), toEmit, now); err != nil {
		return err
	}
	for _, h := range toEmit {
		c.recentlyTouched.Add(h, now)
	}
	llsTouches.WithLabelValues(c.machineLabel()).Add(float64(len(toEmit)))
	return nil
}

// TrimBulk implements spec §4.1 trim_bulk.
func (c *Core) TrimBulk(ctx context.Context, hashes []hash.ContentHash) error {
	if err := c.awaitPostInit(ctx); err != nil {
		return err
	}
	now := time.Now()

	for _, h := range hashes {
		c.recentlyAdded.Invalidate(h)
		c.recentlyRemoved.Add(h, now)
	}
	llsTrims.WithLabelValues(c.machineLabel()).Add(float64(len(hashes)))
	return c.deps.EventStore.RemoveLocations(ctx, machine.ID(c.cfg.LocalMachineID), hashes)
}

// GetBulk implements spec §4.1 get_bulk.
func (c *Core) GetBulk(ctx context.Context, hashes []hash.ContentHash, origin Origin) ([]LocationResult, error) {
	if err := c.awaitPostInit(ctx); err != nil {
		return nil, err
	}

	switch origin {
	case OriginLocal:
		return c.getBulkLocal(ctx, hashes)
	case OriginGlobal:
		return c.getBulkGlobal(ctx, hashes)
	default:
		return nil, precondition("unknown get_bulk origin %d", origin)
	}
}

func (c *Core) getBulkLocal(ctx context.Context, hashes []hash.ContentHash) ([]LocationResult, error) {
	entries, err := c.deps.ContentDB.GetBulk(ctx, hashes)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]LocationResult, len(hashes))
	var toTouch []hash.ContentHash

	for i, h := range hashes {
		e := entries[i]
		if e.IsMissing() {
			out[i] = LocationResult{Hash: h}
			continue
		}
		if now.Sub(e.LastAccessUTC) >= c.cfg.TouchFrequency && !c.recentlyTouched.Contains(h, now) {
			toTouch = append(toTouch, h)
		}
		out[i] = LocationResult{Hash: h, Size: e.Size, Locations: c.resolveLocations(ctx, h, e.Locations.Shuffled(rand.New(rand.NewSource(now.UnixNano()))))}
	}

	if len(toTouch) > 0 {
		if err := c.deps.EventStore.Touch(ctx, machine.ID(c.cfg.LocalMachineID), toTouch, now); err == nil {
			for _, h := range toTouch {
				c.recentlyTouched.Add(h, now)
			}
		}
	}
	return out, nil
}

// getBulkGlobal resolves directly against the Global Store. Unlike the
// Local path, there is no unresolved-id gap to fill here: G's own get_bulk
// already returns each holder's authoritative, resolved Location rather
// than a machine id Cluster State would need to translate, so invariant
// 3's refresh has nothing to do on this path.
func (c *Core) getBulkGlobal(ctx context.Context, hashes []hash.ContentHash) ([]LocationResult, error) {
	entries, err := c.deps.Global.GetBulk(ctx, hashes)
	if err != nil {
		return nil, err
	}

	byHash := make(map[hash.ContentHash]gsapi.LocationEntry, len(entries))
	for _, e := range entries {
		byHash[e.Hash] = e
	}

	out := make([]LocationResult, len(hashes))
	for i, h := range hashes {
		e, ok := byHash[h]
		if !ok {
			out[i] = LocationResult{Hash: h}
			continue
		}
		out[i] = LocationResult{Hash: h, Size: e.Size, Locations: e.Locations}
	}
	return out, nil
}

// resolveLocations resolves a shuffled machine-id set to network
// addresses, ranked by reputation. If any id is unresolvable locally, it
// performs the synchronous Cluster State refresh of spec invariant 3 by
// re-asking the Global Store for h: the Global Store contract (spec §6)
// exposes no bulk machine-directory pull, but its own get_bulk already
// returns each holder's authoritative, resolved Location, so re-querying
// it for this one hash supplies exactly the piece the local directory is
// missing.
func (c *Core) resolveLocations(ctx context.Context, h hash.ContentHash, ids []machine.ID) []machine.Location {
	ordered := c.deps.Reputation.Order(ids)

	locs := make([]machine.Location, 0, len(ordered))
	seen := make(map[machine.Location]bool, len(ordered))
	unresolved := false
	for _, id := range ordered {
		if loc, ok := c.deps.ClusterState.Resolve(id); ok {
			if !seen[loc] {
				locs = append(locs, loc)
				seen[loc] = true
			}
		} else {
			unresolved = true
		}
	}

	if unresolved {
		for _, loc := range c.refreshLocationsFromGlobal(ctx, h) {
			if !seen[loc] {
				locs = append(locs, loc)
				seen[loc] = true
			}
		}
	}
	return locs
}

// refreshLocationsFromGlobal discharges invariant 3's synchronous refresh
// for a single hash whose local Cluster State has a gap. Errors are
// swallowed: this is a best-effort supplement to what Cluster State
// already resolved, not the caller's only source of locations, and
// get_bulk failures are already a TransientRemote case background
// heartbeats self-heal from.
func (c *Core) refreshLocationsFromGlobal(ctx context.Context, h hash.ContentHash) []machine.Location {
	entries, err := c.deps.Global.GetBulk(ctx, []hash.ContentHash{h})
	if err != nil || len(entries) == 0 {
		return nil
	}
	return entries[0].Locations
}

// InvalidateLocalMachine implements spec §4.1 invalidate_local_machine.
func (c *Core) InvalidateLocalMachine(ctx context.Context) error {
	if err := c.awaitPostInit(ctx); err != nil {
		return err
	}
	if err := c.removeReconcileMarker(); err != nil {
		c.logger.Warn("failed to clear reconcile marker", "err", err)
	}
	return c.deps.Global.InvalidateLocalMachine(ctx, machine.ID(c.cfg.LocalMachineID))
}
