package lls

import (
	"context"

	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// LocalContentStore is the narrow, local-store-facing adapter reconciliation
// reads from (spec §9 "adapter objects"): polymorphic over the one
// capability LLS needs, an ordered inventory walk.
type LocalContentStore interface {
	// IterateInventory streams this machine's full local content inventory
	// in ascending ShortHash order, starting at or after from. fn's cont
	// return controls whether iteration continues.
	IterateInventory(ctx context.Context, from hash.ShortHash, fn func(h hash.ContentHash, size uint64) (cont bool, err error)) error
}

// CopyFunc is the externally supplied blob-transfer primitive proactive
// replication drives (spec §4.6); blob transfer itself is out of scope.
type CopyFunc func(ctx context.Context, h hash.ContentHash, target machine.ID) error

// Origin selects where get_bulk resolves locations from (spec §4.1).
type Origin int

const (
	// OriginLocal resolves from the local Content Location Database.
	OriginLocal Origin = iota
	// OriginGlobal asks the Global Store directly.
	OriginGlobal
)

// LocationResult is a single resolved hash as returned by get_bulk.
type LocationResult struct {
	Hash      hash.ContentHash
	Size      uint64
	Locations []machine.Location
}

// HashSize pairs a hash with its size, the public-API counterpart of the
// internal component packages' identically-shaped types.
type HashSize struct {
	Hash hash.ContentHash
	Size uint64
}
