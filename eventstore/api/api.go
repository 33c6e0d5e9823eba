// Package api defines the Event Store contract consumed by LLS (spec §4.8):
// append/consume the ordered event stream (Add/Remove/Touch/Reconcile) and
// the sequence-point cursor that tracks consumption progress.
package api

import (
	"context"
	"time"

	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// SequencePoint is an opaque, totally ordered cursor into the event
// stream.
type SequencePoint uint64

// Zero is the sentinel "no sequence point yet" value.
const Zero SequencePoint = 0

// Kind identifies an event's type.
type Kind int

const (
	// KindLocationAdded records that a machine now holds a hash.
	KindLocationAdded Kind = iota
	// KindLocationRemoved records that a machine no longer holds a hash.
	KindLocationRemoved
	// KindContentTouched records that a hash's last-access time advanced.
	KindContentTouched
	// KindReconcile records a compensating Add/Remove batch produced by
	// reconciliation (spec §4.5).
	KindReconcile
)

// HashSize pairs a hash with its size, as used by Add/Reconcile events.
type HashSize struct {
	Hash hash.ContentHash
	Size uint64
}

// Event is a single entry on the ordered stream, as seen by a consumer.
// Exactly one of the Kind-specific fields is populated, per Kind.
type Event struct {
	SequencePoint SequencePoint
	Kind          Kind
	Machine       machine.ID
	Now           time.Time

	Added   []HashSize         // KindLocationAdded, KindReconcile (additions)
	Removed []hash.ContentHash // KindLocationRemoved, KindReconcile (removals)
	Touched []hash.ContentHash // KindContentTouched
}

// Consumer is the narrow capability abstraction an incoming event is
// dispatched to (spec §9 "adapter objects"): polymorphic over
// location_added/location_removed/content_touched.
type Consumer interface {
	LocationAdded(ctx context.Context, machineID machine.ID, items []HashSize, now time.Time) error
	LocationRemoved(ctx context.Context, machineID machine.ID, items []hash.ContentHash) error
	ContentTouched(ctx context.Context, machineID machine.ID, items []hash.ContentHash, now time.Time) error
}

// PauseToken releases a scoped pause_sending() suppression; Release is
// idempotent and safe to call on every exit path (normal, error,
// cancellation), per spec §5.
type PauseToken interface {
	Release()
}

// Store is the Event Store contract LLS depends on.
type Store interface {
	// StartProcessing begins event production by this node from the given
	// sequence point (Master role only).
	StartProcessing(ctx context.Context, from SequencePoint) error
	// SuspendProcessing stops event production by this node (Worker role);
	// consumption continues regardless.
	SuspendProcessing(ctx context.Context) error

	AddLocations(ctx context.Context, machineID machine.ID, items []HashSize, touch bool) error
	RemoveLocations(ctx context.Context, machineID machine.ID, items []hash.ContentHash) error
	Touch(ctx context.Context, machineID machine.ID, items []hash.ContentHash, now time.Time) error
	Reconcile(ctx context.Context, machineID machine.ID, added []HashSize, removed []hash.ContentHash) error

	// PauseSending scopes a suppression of production; the returned token
	// must be Released on every exit path.
	PauseSending(ctx context.Context) (PauseToken, error)

	// LastProcessedSequencePoint is the read cursor used when creating a
	// checkpoint.
	LastProcessedSequencePoint(ctx context.Context) (SequencePoint, error)
}
