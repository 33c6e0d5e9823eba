// Package keyformat implements fixed-width binary key encoding for badger
// keys, generalizing the pattern used by oasis-core's
// storage/mkvs/db/badger package (one byte prefix tag followed by a fixed
// sequence of fixed-width fields) to ContentHash-keyed records.
package keyformat

import "encoding/binary"

// Sizer is implemented by fixed-width field types participating in a
// KeyFormat (e.g. a ContentHash).
type Sizer interface {
	// Size returns the encoded width in bytes.
	Size() int
	// MarshalBinary returns the field encoded to its fixed width.
	MarshalBinary() ([]byte, error)
	// UnmarshalBinary decodes the field from its fixed width.
	UnmarshalBinary(data []byte) error
}

// KeyFormat describes a tagged, fixed-width composite badger key.
type KeyFormat struct {
	prefix byte
	sizes  []int
}

// New constructs a KeyFormat from a prefix tag and a set of sample values
// (uint64(0) for an 8-byte field, or a Sizer for a fixed-width field) whose
// sizes describe the key layout.
func New(prefix byte, samples ...interface{}) *KeyFormat {
	kf := &KeyFormat{prefix: prefix}
	for _, s := range samples {
		switch v := s.(type) {
		case uint64:
			kf.sizes = append(kf.sizes, 8)
		case Sizer:
			kf.sizes = append(kf.sizes, v.Size())
		default:
			panic("keyformat: unsupported field type")
		}
	}
	return kf
}

// Encode serializes the prefix plus the given field values into a key.
// Field values must be uint64 or Sizer, matching the samples New was
// constructed with, in order. A nil/empty values list is allowed for
// prefix-only (scan-range) keys.
func (kf *KeyFormat) Encode(values ...interface{}) []byte {
	size := 1
	for i := range values {
		if i < len(kf.sizes) {
			size += kf.sizes[i]
		}
	}
	out := make([]byte, 1, size)
	out[0] = kf.prefix

	for _, v := range values {
		switch x := v.(type) {
		case uint64:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], x)
			out = append(out, b[:]...)
		case Sizer:
			enc, err := x.MarshalBinary()
			if err != nil {
				panic(err)
			}
			out = append(out, enc...)
		default:
			panic("keyformat: unsupported field type")
		}
	}
	return out
}

// Decode parses key (which must have been produced by Encode with a value
// for each of dests) into dests, which must be *uint64 or Sizer pointers.
// It reports whether key matched this KeyFormat's prefix and had the
// expected total length.
func (kf *KeyFormat) Decode(key []byte, dests ...interface{}) bool {
	if len(key) == 0 || key[0] != kf.prefix {
		return false
	}
	rest := key[1:]
	for i, d := range dests {
		var width int
		if i < len(kf.sizes) {
			width = kf.sizes[i]
		}
		if len(rest) < width {
			return false
		}
		switch x := d.(type) {
		case *uint64:
			*x = binary.BigEndian.Uint64(rest[:width])
		case Sizer:
			if err := x.UnmarshalBinary(rest[:width]); err != nil {
				return false
			}
		default:
			panic("keyformat: unsupported field type")
		}
		rest = rest[width:]
	}
	return len(rest) == 0
}

// EncodePrefix returns the bare prefix byte, used for full-range badger
// iteration over every key sharing this KeyFormat.
func (kf *KeyFormat) EncodePrefix() []byte {
	return []byte{kf.prefix}
}
