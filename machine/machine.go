// Package machine defines the cluster's dense machine-id space and the
// compressed bitset used to record, per content hash, which machines hold
// a replica (spec §3).
package machine

import (
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"
)

// ID is a dense small integer assigned by the global store on first
// registration. Ids are never reused.
type ID uint32

// Location is an opaque network address for a machine.
type Location string

// BitSet is a compressed bitmap of machine ids, used as
// ContentLocationEntry.Locations.
type BitSet struct {
	bm *roaring.Bitmap
}

// NewBitSet returns an empty BitSet.
func NewBitSet() *BitSet {
	return &BitSet{bm: roaring.New()}
}

// Add sets id's bit.
func (b *BitSet) Add(id ID) { b.bm.Add(uint32(id)) }

// Remove clears id's bit.
func (b *BitSet) Remove(id ID) { b.bm.Remove(uint32(id)) }

// Contains reports whether id's bit is set.
func (b *BitSet) Contains(id ID) bool { return b.bm.Contains(uint32(id)) }

// Count returns the number of set bits (the replica count).
func (b *BitSet) Count() int { return int(b.bm.GetCardinality()) }

// Clone returns an independent copy.
func (b *BitSet) Clone() *BitSet { return &BitSet{bm: b.bm.Clone()} }

// ToSlice returns the set bits as a slice of ids, in ascending order.
func (b *BitSet) ToSlice() []ID {
	vals := b.bm.ToArray()
	out := make([]ID, len(vals))
	for i, v := range vals {
		out[i] = ID(v)
	}
	return out
}

// Shuffled returns the set bits in a randomized order, the basis for
// MachineList's lazy location resolution (spec §9 "MachineList").
func (b *BitSet) Shuffled(rng *rand.Rand) []ID {
	ids := b.ToSlice()
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// MarshalBinary serializes the bitset to its compact roaring encoding.
func (b *BitSet) MarshalBinary() ([]byte, error) {
	return b.bm.ToBytes()
}

// UnmarshalBinary deserializes a bitset produced by MarshalBinary.
func (b *BitSet) UnmarshalBinary(data []byte) error {
	b.bm = roaring.New()
	return b.bm.UnmarshalBinary(data)
}
