// Package cbor wraps fxamacker/cbor with the canonical encoding options
// used across LLS's persisted records, mirroring the helper oasis-core's
// storage/mkvs/db/badger package calls into for node and metadata values.
package cbor

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.CanonicalEncOptions()
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(err)
	}
	decOpts := cbor.DecOptions{}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal serializes v into canonical CBOR.
func Marshal(v interface{}) []byte {
	b, err := encMode.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Unmarshal deserializes untrusted CBOR into v.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// UnmarshalTrusted deserializes CBOR that this process itself produced
// (e.g. read back from the local database) into v, panicking on failure
// since such failure indicates local corruption rather than a malformed
// remote payload.
func UnmarshalTrusted(data []byte, v interface{}) {
	if err := decMode.Unmarshal(data, v); err != nil {
		panic(err)
	}
}
