// Package cachingclient wraps a remote Central Storage Backend with a
// bounded local cache of checkpoint blobs, the same "local cache in front
// of a remote backend" composition storage/init.go uses to wrap
// api.Backend implementations, and the same cache-size-bounded-LRU shape
// storage/cachingclient/cachingclient_test.go exercises (cfgCacheSize).
package cachingclient

import (
	"container/list"
	"context"
	"sync"

	csapi "github.com/distcache/lls/centralstorage/api"
	"github.com/distcache/lls/common/logging"
)

// Config bounds the local cache.
type Config struct {
	// CacheSizeBytes is the maximum total size of cached blobs. Zero
	// means unbounded.
	CacheSizeBytes int64
}

type cacheEntry struct {
	checkpointID string
	data         []byte
}

// Backend is a remote csapi.Backend fronted by a bounded local blob cache.
// Manifests are never cached: Latest always asks the remote, since a stale
// manifest would point checkpoint restore at the wrong sequence point.
type Backend struct {
	remote csapi.Backend
	logger *logging.Logger

	cfg Config

	mu       sync.Mutex
	lru      *list.List
	index    map[string]*list.Element
	curBytes int64
}

var _ csapi.Backend = (*Backend)(nil)

// New wraps remote with a bounded local blob cache.
func New(remote csapi.Backend, cfg Config) *Backend {
	return &Backend{
		remote: remote,
		logger: logging.GetLogger("centralstorage/cachingclient"),
		cfg:    cfg,
		lru:    list.New(),
		index:  make(map[string]*list.Element),
	}
}

// PutBlob implements csapi.Backend: the blob is forwarded to the remote
// backend and, once accepted, seeded into the local cache under the id the
// remote assigned.
func (b *Backend) PutBlob(ctx context.Context, data []byte) (string, error) {
	id, err := b.remote.PutBlob(ctx, data)
	if err != nil {
		return "", err
	}
	b.insert(id, data)
	return id, nil
}

// GetBlob implements csapi.Backend, serving from the local cache when
// possible and falling back to the remote backend on a miss.
func (b *Backend) GetBlob(ctx context.Context, checkpointID string) ([]byte, error) {
	if data, ok := b.lookup(checkpointID); ok {
		return data, nil
	}
	data, err := b.remote.GetBlob(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	b.insert(checkpointID, data)
	return data, nil
}

// DeleteBlob implements csapi.Backend: forwarded to the remote and evicted
// from the local cache regardless of the remote's outcome.
func (b *Backend) DeleteBlob(ctx context.Context, checkpointID string) error {
	err := b.remote.DeleteBlob(ctx, checkpointID)
	b.evict(checkpointID)
	return err
}

// PutManifest implements csapi.Backend, always forwarding to the remote.
func (b *Backend) PutManifest(ctx context.Context, m csapi.Manifest) error {
	return b.remote.PutManifest(ctx, m)
}

// Latest implements csapi.Backend, always asking the remote.
func (b *Backend) Latest(ctx context.Context) (csapi.Manifest, bool, error) {
	return b.remote.Latest(ctx)
}

func (b *Backend) lookup(checkpointID string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.index[checkpointID]
	if !ok {
		return nil, false
	}
	b.lru.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

func (b *Backend) evict(checkpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.index[checkpointID]
	if !ok {
		return
	}
	b.curBytes -= int64(len(el.Value.(*cacheEntry).data))
	b.lru.Remove(el)
	delete(b.index, checkpointID)
}

func (b *Backend) insert(checkpointID string, data []byte) {
	if b.cfg.CacheSizeBytes > 0 && int64(len(data)) > b.cfg.CacheSizeBytes {
		// Larger than the whole cache: not worth caching.
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if el, ok := b.index[checkpointID]; ok {
		b.curBytes -= int64(len(el.Value.(*cacheEntry).data))
		b.lru.Remove(el)
		delete(b.index, checkpointID)
	}

	el := b.lru.PushFront(&cacheEntry{checkpointID: checkpointID, data: data})
	b.index[checkpointID] = el
	b.curBytes += int64(len(data))

	for b.cfg.CacheSizeBytes > 0 && b.curBytes > b.cfg.CacheSizeBytes && b.lru.Len() > 0 {
		back := b.lru.Back()
		entry := back.Value.(*cacheEntry)
		b.curBytes -= int64(len(entry.data))
		b.lru.Remove(back)
		delete(b.index, entry.checkpointID)
	}
}
