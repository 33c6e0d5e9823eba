// Package localdisk is the local-disk variant of Central Storage: each
// checkpoint artifact is a snappy-compressed file in a directory, and the
// latest manifest is a small CBOR side-file. The directory-rooted Config
// shape mirrors storage/mkvs/db/badger/badger.go's Config{DB: path}, and
// the snappy compression choice mirrors badger's own
// opts.WithCompression(options.Snappy).
package localdisk

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	csapi "github.com/distcache/lls/centralstorage/api"
	"github.com/distcache/lls/common/cbor"
	"github.com/distcache/lls/common/logging"
)

// Config configures a local-disk Backend.
type Config struct {
	// Dir is the on-disk directory blobs and the manifest are stored
	// under. It is created if it doesn't exist.
	Dir string
}

// Backend is the local-disk Central Storage implementation.
type Backend struct {
	dir    string
	logger *logging.Logger

	mu sync.Mutex
}

var _ csapi.Backend = (*Backend)(nil)

// New constructs a Backend rooted at cfg.Dir.
func New(cfg *Config) (*Backend, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("centralstorage/localdisk: failed to create directory: %w", err)
	}
	return &Backend{dir: cfg.Dir, logger: logging.GetLogger("centralstorage/localdisk")}, nil
}

func (b *Backend) blobPath(checkpointID string) string {
	return filepath.Join(b.dir, checkpointID+".blob")
}

func (b *Backend) manifestPath() string {
	return filepath.Join(b.dir, "manifest.cbor")
}

func newCheckpointID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// PutBlob implements csapi.Backend.
func (b *Backend) PutBlob(_ context.Context, data []byte) (string, error) {
	id, err := newCheckpointID()
	if err != nil {
		return "", err
	}
	compressed := snappy.Encode(nil, data)
	if err := os.WriteFile(b.blobPath(id), compressed, 0o644); err != nil {
		return "", fmt.Errorf("centralstorage/localdisk: failed to write blob: %w", err)
	}
	return id, nil
}

// GetBlob implements csapi.Backend.
func (b *Backend) GetBlob(_ context.Context, checkpointID string) ([]byte, error) {
	compressed, err := os.ReadFile(b.blobPath(checkpointID))
	if err != nil {
		return nil, fmt.Errorf("centralstorage/localdisk: failed to read blob %s: %w", checkpointID, err)
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("centralstorage/localdisk: failed to decompress blob %s: %w", checkpointID, err)
	}
	return data, nil
}

// DeleteBlob implements csapi.Backend.
func (b *Backend) DeleteBlob(_ context.Context, checkpointID string) error {
	err := os.Remove(b.blobPath(checkpointID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("centralstorage/localdisk: failed to delete blob %s: %w", checkpointID, err)
	}
	return nil
}

// PutManifest implements csapi.Backend.
func (b *Backend) PutManifest(_ context.Context, m csapi.Manifest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tmp := b.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, cbor.Marshal(m), 0o644); err != nil {
		return fmt.Errorf("centralstorage/localdisk: failed to write manifest: %w", err)
	}
	return os.Rename(tmp, b.manifestPath())
}

// Latest implements csapi.Backend.
func (b *Backend) Latest(_ context.Context) (csapi.Manifest, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.manifestPath())
	if os.IsNotExist(err) {
		return csapi.Manifest{}, false, nil
	}
	if err != nil {
		return csapi.Manifest{}, false, err
	}
	var m csapi.Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return csapi.Manifest{}, false, err
	}
	return m, true, nil
}
