// Package badgerdb is the badger-backed Content Location Database,
// grounded directly on oasis-core's storage/mkvs/db/badger package: a
// single badger.DB keyed by a keyformat-encoded tag, values CBOR-encoded,
// with a metadata-update lock guarding the one piece of persisted
// metadata. Ordered enumeration by ContentHash falls out of badger's own
// key-ordered iteration, which is exactly the property component C needs.
package badgerdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"

	clapi "github.com/distcache/lls/contentlocation/api"
	"github.com/distcache/lls/common/cbor"
	"github.com/distcache/lls/common/keyformat"
	"github.com/distcache/lls/common/logging"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// entryKeyFmt is the key format for location entries: 0x01 || ContentHash.
// Since badger iterates keys in byte order, this also gives ordered
// enumeration by (Short)Hash for free.
var entryKeyFmt = keyformat.New(0x01, &hash.ContentHash{})

// entryRecord is the CBOR-serialized value stored for each entry.
type entryRecord struct {
	Size           uint64 `cbor:"size"`
	LastAccessUnix int64  `cbor:"last_access_unix"`
	Locations      []byte `cbor:"locations"`
}

// Config configures a DB instance.
type Config struct {
	// Dir is the on-disk directory backing badger. Empty means
	// memory-only, used by tests.
	Dir string
}

// DB is a badger-backed Content Location Database.
type DB struct {
	logger *logging.Logger
	db     *badger.DB

	writeableLock sync.RWMutex
	writeable     bool

	corruptionLock sync.Mutex
	corruptionFn   clapi.CorruptionFunc
	corruptionFired bool
}

var _ clapi.DB = (*DB)(nil)

// New opens (or creates) a badger-backed Content Location Database.
func New(cfg *Config) (*DB, error) {
	logger := logging.GetLogger("contentlocation/badgerdb")

	opts := badger.DefaultOptions(cfg.Dir)
	opts = opts.WithCompression(options.Snappy)
	opts = opts.WithTruncate(true)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("contentlocation/badgerdb: failed to open database: %w", err)
	}

	return &DB{logger: logger, db: bdb}, nil
}

func (d *DB) signalCorruption(err error) {
	d.corruptionLock.Lock()
	defer d.corruptionLock.Unlock()
	if d.corruptionFired || d.corruptionFn == nil {
		return
	}
	d.corruptionFired = true
	go d.corruptionFn(err)
}

// OnCorruption implements clapi.DB.
func (d *DB) OnCorruption(fn clapi.CorruptionFunc) {
	d.corruptionLock.Lock()
	defer d.corruptionLock.Unlock()
	d.corruptionFn = fn
}

// SetWriteable implements clapi.DB.
func (d *DB) SetWriteable(writeable bool) {
	d.writeableLock.Lock()
	defer d.writeableLock.Unlock()
	d.writeable = writeable
}

// Writeable implements clapi.DB.
func (d *DB) Writeable() bool {
	d.writeableLock.RLock()
	defer d.writeableLock.RUnlock()
	return d.writeable
}

func (d *DB) requireWriteable() error {
	if !d.Writeable() {
		return fmt.Errorf("contentlocation/badgerdb: database is not writeable (not master)")
	}
	return nil
}

func decodeEntry(raw []byte) (*clapi.Entry, error) {
	var rec entryRecord
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	bs := machine.NewBitSet()
	if len(rec.Locations) > 0 {
		if err := bs.UnmarshalBinary(rec.Locations); err != nil {
			return nil, err
		}
	}
	return &clapi.Entry{
		Size:          rec.Size,
		LastAccessUTC: time.Unix(rec.LastAccessUnix, 0).UTC(),
		Locations:     bs,
	}, nil
}

func encodeEntry(e *clapi.Entry) ([]byte, error) {
	locBytes, err := e.Locations.MarshalBinary()
	if err != nil {
		return nil, err
	}
	rec := entryRecord{
		Size:           e.Size,
		LastAccessUnix: e.LastAccessUTC.Unix(),
		Locations:      locBytes,
	}
	return cbor.Marshal(rec), nil
}

// Get implements clapi.DB.
func (d *DB) Get(_ context.Context, h hash.ContentHash) (*clapi.Entry, error) {
	var out *clapi.Entry
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKeyFmt.Encode(&h))
		switch err {
		case nil:
		case badger.ErrKeyNotFound:
			out = clapi.Missing
			return nil
		default:
			return err
		}
		return item.Value(func(val []byte) error {
			e, derr := decodeEntry(val)
			if derr != nil {
				d.signalCorruption(derr)
				return derr
			}
			out = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetBulk implements clapi.DB.
func (d *DB) GetBulk(ctx context.Context, hashes []hash.ContentHash) ([]*clapi.Entry, error) {
	out := make([]*clapi.Entry, len(hashes))
	for i, h := range hashes {
		e, err := d.Get(ctx, h)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (d *DB) mutate(fn func(txn *badger.Txn) error) error {
	if err := d.requireWriteable(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

func (d *DB) getLocked(txn *badger.Txn, h hash.ContentHash) (*clapi.Entry, error) {
	item, err := txn.Get(entryKeyFmt.Encode(&h))
	switch err {
	case nil:
	case badger.ErrKeyNotFound:
		return &clapi.Entry{Locations: machine.NewBitSet()}, nil
	default:
		return nil, err
	}
	var e *clapi.Entry
	verr := item.Value(func(val []byte) error {
		var derr error
		e, derr = decodeEntry(val)
		return derr
	})
	if verr != nil {
		return nil, verr
	}
	return e, nil
}

func (d *DB) putLocked(txn *badger.Txn, h hash.ContentHash, e *clapi.Entry) error {
	enc, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return txn.Set(entryKeyFmt.Encode(&h), enc)
}

// ApplyAdd implements clapi.DB.
func (d *DB) ApplyAdd(_ context.Context, machineID machine.ID, items []clapi.HashSize, touch bool, now time.Time) error {
	return d.mutate(func(txn *badger.Txn) error {
		for _, it := range items {
			e, err := d.getLocked(txn, it.Hash)
			if err != nil {
				return err
			}
			e.Size = it.Size
			e.Locations.Add(machineID)
			if e.LastAccessUTC.Before(now) {
				e.LastAccessUTC = now
			}
			if err := d.putLocked(txn, it.Hash, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyRemove implements clapi.DB.
func (d *DB) ApplyRemove(_ context.Context, machineID machine.ID, hashes []hash.ContentHash) error {
	return d.mutate(func(txn *badger.Txn) error {
		for _, h := range hashes {
			e, err := d.getLocked(txn, h)
			if err != nil {
				return err
			}
			e.Locations.Remove(machineID)
			if err := d.putLocked(txn, h, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyTouch implements clapi.DB.
func (d *DB) ApplyTouch(_ context.Context, hashes []hash.ContentHash, now time.Time) error {
	return d.mutate(func(txn *badger.Txn) error {
		for _, h := range hashes {
			if _, err := txn.Get(entryKeyFmt.Encode(&h)); err == badger.ErrKeyNotFound {
				continue
			}
			e, err := d.getLocked(txn, h)
			if err != nil {
				return err
			}
			if e.LastAccessUTC.Before(now) {
				e.LastAccessUTC = now
			}
			if err := d.putLocked(txn, h, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// IterateOrdered implements clapi.DB.
func (d *DB) IterateOrdered(_ context.Context, machineID machine.ID, from hash.ShortHash, fn func(hash.ContentHash, uint64, time.Time) (bool, error)) error {
	var start hash.ContentHash
	copy(start[:], from[:])

	return d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(entryKeyFmt.Encode(&start)); it.Valid(); it.Next() {
			item := it.Item()
			var h hash.ContentHash
			if !entryKeyFmt.Decode(item.Key(), &h) {
				continue
			}
			var cont bool
			var ferr error
			verr := item.Value(func(val []byte) error {
				e, derr := decodeEntry(val)
				if derr != nil {
					return derr
				}
				if !e.Locations.Contains(machineID) {
					cont = true
					return nil
				}
				cont, ferr = fn(h, e.Size, e.LastAccessUTC)
				return ferr
			})
			if verr != nil {
				d.signalCorruption(verr)
				return verr
			}
			if ferr != nil {
				return ferr
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

// snapshotRecord is the wire shape for a full-database snapshot.
type snapshotRecord struct {
	Hash hash.ContentHash `cbor:"hash"`
	Rec  entryRecord      `cbor:"rec"`
}

// Snapshot implements clapi.DB.
func (d *DB) Snapshot(_ context.Context) ([]byte, error) {
	var records []snapshotRecord
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := entryKeyFmt.EncodePrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var h hash.ContentHash
			if !entryKeyFmt.Decode(item.Key(), &h) {
				continue
			}
			verr := item.Value(func(val []byte) error {
				var rec entryRecord
				if err := cbor.Unmarshal(val, &rec); err != nil {
					return err
				}
				records = append(records, snapshotRecord{Hash: h, Rec: rec})
				return nil
			})
			if verr != nil {
				return verr
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(records), nil
}

// Restore implements clapi.DB. It replaces the database's contents: every
// existing entry key is dropped, then the snapshot's records are written
// in write batches of 1000. The replacement is not atomic: if a batch
// fails, the old entries are already gone and only the earlier batches
// have been written.
func (d *DB) Restore(_ context.Context, data []byte) error {
	var records []snapshotRecord
	if err := cbor.Unmarshal(data, &records); err != nil {
		return err
	}

	// Drop existing entries.
	if err := d.db.DropPrefix(entryKeyFmt.EncodePrefix()); err != nil {
		return fmt.Errorf("contentlocation/badgerdb: failed to clear existing entries: %w", err)
	}

	const batchSize = 1000
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := d.db.NewWriteBatch()
		for _, r := range records[i:end] {
			enc := cbor.Marshal(r.Rec)
			if err := batch.Set(entryKeyFmt.Encode(&r.Hash), enc); err != nil {
				batch.Cancel()
				return err
			}
		}
		if err := batch.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying badger database.
func (d *DB) Close() error {
	return d.db.Close()
}
