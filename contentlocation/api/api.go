// Package api defines the Content Location Database contract (spec §2
// component C): the local materialized index ContentHash -> {size,
// lastAccess, bitset of MachineIds}, with ordered enumeration by hash.
package api

import (
	"context"
	"time"

	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// Entry is a single hash's materialized location record (spec §3).
type Entry struct {
	Size          uint64
	LastAccessUTC time.Time
	Locations     *machine.BitSet
}

// IsMissing reports whether this is the distinguished "not present"
// sentinel.
func (e *Entry) IsMissing() bool {
	return e == nil || e.Locations == nil
}

// Missing is the distinguished "not present in local db" entry.
var Missing *Entry

// CorruptionFunc is a one-shot callback fired when the database detects
// corruption (spec §4.3: "On DB corruption (signalled by C via a one-shot
// callback)...").
type CorruptionFunc func(err error)

// DB is the Content Location Database contract.
type DB interface {
	// Get returns the entry for h, or Missing if absent.
	Get(ctx context.Context, h hash.ContentHash) (*Entry, error)

	// GetBulk returns entries for each hash in hashes, in input order,
	// using Missing for absent hashes.
	GetBulk(ctx context.Context, hashes []hash.ContentHash) ([]*Entry, error)

	// ApplyAdd sets machineID's bit for each hash, creating entries as
	// needed and updating size; resolves to last-writer-wins with
	// concurrent removes under event order (spec invariant 1). lastAccess
	// is advanced to now the way ApplyTouch does (never moved backwards),
	// whether or not touch is set.
	ApplyAdd(ctx context.Context, machineID machine.ID, items []HashSize, touch bool, now time.Time) error

	// ApplyRemove clears machineID's bit for each hash.
	ApplyRemove(ctx context.Context, machineID machine.ID, hashes []hash.ContentHash) error

	// ApplyTouch advances lastAccess for each hash to now, provided now is
	// later than the currently stored value (spec invariant 2). Hashes
	// with no entry are skipped; no entry is created.
	ApplyTouch(ctx context.Context, hashes []hash.ContentHash, now time.Time) error

	// SetWriteable controls whether Apply* calls are accepted. It is
	// writeable iff the local role is Master (spec §8 "Role exclusivity of
	// writes").
	SetWriteable(writeable bool)
	Writeable() bool

	// IterateOrdered streams the hash, size and lastAccess of every entry
	// holding machineID's bit, in ascending hash (and so ShortHash) order,
	// starting at or after from. It is used
	// by reconciliation's co-walk (spec §4.5) and by the eviction
	// candidate feed (spec §4.7).
	IterateOrdered(ctx context.Context, machineID machine.ID, from hash.ShortHash, fn func(h hash.ContentHash, size uint64, lastAccess time.Time) (cont bool, err error)) error

	// Snapshot serializes the entire database for a checkpoint.
	Snapshot(ctx context.Context) ([]byte, error)
	// Restore replaces the database's contents from a previously taken
	// Snapshot (spec invariant 2 exception: lastAccessUtc is allowed to go
	// backwards here). The badgerdb implementation does not make the
	// replacement atomic.
	Restore(ctx context.Context, data []byte) error

	// OnCorruption registers fn to be invoked (at most once per
	// occurrence) when the database detects corruption.
	OnCorruption(fn CorruptionFunc)

	Close() error
}

// HashSize pairs a hash with its size, mirroring eventstore/api.HashSize so
// DB doesn't need to import the event store package.
type HashSize struct {
	Hash hash.ContentHash
	Size uint64
}
