// Package dirstore is a minimal filesystem-backed implementation of
// lls.LocalContentStore: this machine's actual blob cache, named by hex
// ContentHash, is out of LLS's scope (spec §9 "adapter objects" — this is
// the local-store-facing view LLS is handed, not something LLS owns).
// The directory-rooted layout mirrors centralstorage/localdisk's
// Config{Dir: path} shape, generalized from single blobs to a whole
// content-addressed inventory.
package dirstore

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	"github.com/distcache/lls/hash"
)

// Store lists a directory of hex-named blob files as a content inventory.
type Store struct {
	dir string
}

// New constructs a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// IterateInventory implements lls.LocalContentStore.
func (s *Store) IterateInventory(ctx context.Context, from hash.ShortHash, fn func(h hash.ContentHash, size uint64) (bool, error)) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type item struct {
		h    hash.ContentHash
		size uint64
	}
	items := make([]item, 0, len(entries))
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		raw, err := hex.DecodeString(de.Name())
		if err != nil || len(raw) != hash.Size {
			continue
		}
		h, err := hash.FromBytes(raw)
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		items = append(items, item{h: h, size: uint64(info.Size())})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].h.Less(items[j].h) })

	for _, it := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if it.h.Short().Less(from) {
			continue
		}
		cont, err := fn(it.h, it.size)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Path returns the on-disk path a blob named by h would occupy.
func (s *Store) Path(h hash.ContentHash) string {
	return filepath.Join(s.dir, h.String())
}
