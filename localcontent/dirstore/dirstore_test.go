package dirstore

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/distcache/lls/hash"
)

func writeBlob(t *testing.T, dir string, h hash.ContentHash, size int) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, h.String()), data, 0o644))
}

func randomHash(t *testing.T) hash.ContentHash {
	t.Helper()
	var buf [hash.Size]byte
	_, err := rand.Read(buf[:])
	require.NoError(t, err)
	h, err := hash.FromBytes(buf[:])
	require.NoError(t, err)
	return h
}

func TestIterateInventoryOrdersByHash(t *testing.T) {
	dir := t.TempDir()
	hashes := make([]hash.ContentHash, 5)
	for i := range hashes {
		hashes[i] = randomHash(t)
		writeBlob(t, dir, hashes[i], 10+i)
	}

	s := New(dir)
	var seen []hash.ContentHash
	err := s.IterateInventory(context.Background(), hash.ShortHash{}, func(h hash.ContentHash, size uint64) (bool, error) {
		seen = append(seen, h)
		return true, nil
	})
	require.NoError(t, err, "IterateInventory")
	require.Len(t, seen, len(hashes))

	for i := 1; i < len(seen); i++ {
		require.True(t, seen[i-1].Less(seen[i]) || seen[i-1] == seen[i], "entries must be in ascending hash order")
	}
}

func TestIterateInventoryStartsFromCursor(t *testing.T) {
	dir := t.TempDir()
	hashes := make([]hash.ContentHash, 4)
	for i := range hashes {
		hashes[i] = randomHash(t)
		writeBlob(t, dir, hashes[i], 1)
	}

	s := New(dir)
	var all []hash.ContentHash
	require.NoError(t, s.IterateInventory(context.Background(), hash.ShortHash{}, func(h hash.ContentHash, size uint64) (bool, error) {
		all = append(all, h)
		return true, nil
	}))
	require.Len(t, all, 4)

	cursor := all[2].Short()
	var fromCursor []hash.ContentHash
	require.NoError(t, s.IterateInventory(context.Background(), cursor, func(h hash.ContentHash, size uint64) (bool, error) {
		fromCursor = append(fromCursor, h)
		return true, nil
	}))
	require.Equal(t, all[2:], fromCursor, "iteration should resume at the cursor")
}

func TestIterateInventoryStopsOnFalse(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeBlob(t, dir, randomHash(t), 1)
	}

	s := New(dir)
	count := 0
	err := s.IterateInventory(context.Background(), hash.ShortHash{}, func(h hash.ContentHash, size uint64) (bool, error) {
		count++
		return count < 2, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, count, "iteration should stop once fn returns false")
}

func TestIterateInventoryEmptyDirIsNotAnError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"))
	err := s.IterateInventory(context.Background(), hash.ShortHash{}, func(h hash.ContentHash, size uint64) (bool, error) {
		t.Fatal("fn should not be called for an empty/missing directory")
		return false, nil
	})
	require.NoError(t, err)
}
