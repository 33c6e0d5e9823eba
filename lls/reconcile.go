package lls

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	esapi "github.com/distcache/lls/eventstore/api"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

const reconcileMarkerFile = "reconcileMarker.txt"

func (c *Core) reconcileMarkerPath() string {
	return filepath.Join(c.cfg.WorkingDir, reconcileMarkerFile)
}

// markerUpToDate implements the freshness check of spec §4.5: the marker
// is up to date iff its prefix matches CheckpointPrefix and its timestamp
// is within 0.75 * LocationEntryExpiry of now.
func (c *Core) markerUpToDate(now time.Time) bool {
	data, err := os.ReadFile(c.reconcileMarkerPath())
	if err != nil {
		return false
	}
	line := strings.TrimSpace(string(data))
	parts := strings.SplitN(line, "|", 2)
	if len(parts) != 2 {
		return false
	}
	if parts[0] != c.cfg.CheckpointPrefix {
		return false
	}
	unixSeconds, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false
	}
	markerTime := time.Unix(unixSeconds, 0).UTC()
	window := time.Duration(float64(c.cfg.LocationEntryExpiry) * 0.75)
	return now.Sub(markerTime) <= window
}

func (c *Core) writeReconcileMarker(now time.Time) error {
	if err := os.MkdirAll(c.cfg.WorkingDir, 0o755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s|%d", c.cfg.CheckpointPrefix, now.UTC().Unix())
	tmp := c.reconcileMarkerPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(line), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.reconcileMarkerPath())
}

func (c *Core) removeReconcileMarker() error {
	err := os.Remove(c.reconcileMarkerPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// diffItem is one entry from either sorted inventory stream, co-walked by
// ShortHash.
type diffItem struct {
	Short hash.ShortHash
	Hash  hash.ContentHash
	Size  uint64
}

// streamLocal pulls a bounded page (up to limit items) from the local
// content store starting at from, returning the items and whether the
// local inventory is exhausted.
func (c *Core) streamLocal(ctx context.Context, from hash.ShortHash, limit int) ([]diffItem, bool, error) {
	var out []diffItem
	exhausted := true
	err := c.deps.LocalStore.IterateInventory(ctx, from, func(h hash.ContentHash, size uint64) (bool, error) {
		out = append(out, diffItem{Short: h.Short(), Hash: h, Size: size})
		if len(out) >= limit {
			exhausted = false
			return false, nil
		}
		return true, nil
	})
	return out, exhausted, err
}

// streamDB pulls a bounded page from the content location DB's
// per-machine ordered view.
func (c *Core) streamDB(ctx context.Context, from hash.ShortHash, limit int) ([]diffItem, bool, error) {
	var out []diffItem
	exhausted := true
	err := c.deps.ContentDB.IterateOrdered(ctx, machine.ID(c.cfg.LocalMachineID), from, func(h hash.ContentHash, size uint64, _ time.Time) (bool, error) {
		out = append(out, diffItem{Short: h.Short(), Hash: h, Size: size})
		if len(out) >= limit {
			exhausted = false
			return false, nil
		}
		return true, nil
	})
	return out, exhausted, err
}

// coWalkDiff performs the classic two-pointer diff of spec §4.5 step 4
// over two already-sorted pages: items local-only -> added, items
// db-only -> removed, equal keys -> dropped.
func coWalkDiff(local, db []diffItem) (added []esapi.HashSize, removed []hash.ContentHash) {
	i, j := 0, 0
	for i < len(local) && j < len(db) {
		switch {
		case local[i].Short == db[j].Short:
			i++
			j++
		case local[i].Short.Less(db[j].Short):
			added = append(added, esapi.HashSize{Hash: local[i].Hash, Size: local[i].Size})
			i++
		default:
			removed = append(removed, db[j].Hash)
			j++
		}
	}
	for ; i < len(local); i++ {
		added = append(added, esapi.HashSize{Hash: local[i].Hash, Size: local[i].Size})
	}
	for ; j < len(db); j++ {
		removed = append(removed, db[j].Hash)
	}
	return added, removed
}

// Reconcile implements spec §4.1 reconcile / §4.5.
func (c *Core) Reconcile(ctx context.Context) error {
	if err := c.awaitPostInit(ctx); err != nil {
		return err
	}

	now := time.Now()
	if c.markerUpToDate(now) {
		return nil
	}

	var cursor hash.ShortHash
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pageSize := c.cfg.ReconciliationMaxCycleSize
		if pageSize <= 0 {
			pageSize = 1024
		}

		pauseToken, err := c.deps.EventStore.PauseSending(ctx)
		if err != nil {
			return fmt.Errorf("lls: failed to pause event production for reconcile: %w", err)
		}

		localItems, localDone, err := c.streamLocal(ctx, cursor, pageSize)
		if err != nil {
			pauseToken.Release()
			return err
		}
		dbItems, dbDone, err := c.streamDB(ctx, cursor, pageSize)
		if err != nil {
			pauseToken.Release()
			return err
		}

		added, removed := coWalkDiff(localItems, dbItems)
		if len(added) > 0 || len(removed) > 0 {
			if err := c.emitReconcileBatch(ctx, added, removed); err != nil {
				pauseToken.Release()
				return err
			}
			llsReconcileDiffs.WithLabelValues(c.machineLabel(), "added").Add(float64(len(added)))
			llsReconcileDiffs.WithLabelValues(c.machineLabel(), "removed").Add(float64(len(removed)))
		}
		pauseToken.Release()

		done := localDone && dbDone
		if !done {
			next, ok := nextCursor(localItems, dbItems)
			if !ok {
				// The last emitted item already carries the maximum
				// possible ShortHash; nothing can sort after it.
				done = true
			} else {
				cursor = next
			}
		}
		if done {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconciliationCycleFrequency):
		}
	}

	return c.writeReconcileMarker(now)
}

// nextCursor derives the next page's starting bound from the last page's
// two sides. Both streamLocal and streamDB treat their from argument as an
// inclusive lower bound, so simply reusing the page's highest ShortHash
// would re-fetch (and, for diff items, re-emit) that same item as the
// first entry of the next page; advancing to the next representable
// ShortHash makes the bound effectively exclusive of everything already
// walked. ok is false only when the maximum ShortHash has been reached.
func nextCursor(local, db []diffItem) (hash.ShortHash, bool) {
	var max hash.ShortHash
	have := false
	for _, it := range local {
		if !have || max.Less(it.Short) {
			max, have = it.Short, true
		}
	}
	for _, it := range db {
		if !have || max.Less(it.Short) {
			max, have = it.Short, true
		}
	}
	return max.Next()
}

// emitReconcileBatch opens a temporary, independently-sequenced event
// store instance, emits the reconcile batch through it, and tears it
// down, guaranteeing these events are observed before any post-pause
// event the main store later produces (spec §4.5 step 5, §5).
func (c *Core) emitReconcileBatch(ctx context.Context, added []esapi.HashSize, removed []hash.ContentHash) error {
	temp, err := c.deps.NewEventStore()
	if err != nil {
		return fmt.Errorf("lls: failed to open temporary reconcile event store: %w", err)
	}
	if err := temp.Reconcile(ctx, machine.ID(c.cfg.LocalMachineID), added, removed); err != nil {
		return err
	}
	if closer, ok := temp.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
