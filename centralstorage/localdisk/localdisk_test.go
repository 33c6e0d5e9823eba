package localdisk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	csapi "github.com/distcache/lls/centralstorage/api"
)

func TestPutGetBlob(t *testing.T) {
	ctx := context.Background()
	b, err := New(&Config{Dir: t.TempDir()})
	require.NoError(t, err, "New")

	data := []byte("checkpoint payload")
	id, err := b.PutBlob(ctx, data)
	require.NoError(t, err, "PutBlob")
	require.NotEmpty(t, id, "checkpoint id should not be empty")

	got, err := b.GetBlob(ctx, id)
	require.NoError(t, err, "GetBlob")
	require.Equal(t, data, got, "round-tripped blob should match")
}

func TestGetBlobMissing(t *testing.T) {
	b, err := New(&Config{Dir: t.TempDir()})
	require.NoError(t, err, "New")

	_, err = b.GetBlob(context.Background(), "does-not-exist")
	require.Error(t, err, "GetBlob of a missing id should fail")
}

func TestManifestRoundTripAndLatest(t *testing.T) {
	ctx := context.Background()
	b, err := New(&Config{Dir: t.TempDir()})
	require.NoError(t, err, "New")

	_, ok, err := b.Latest(ctx)
	require.NoError(t, err, "Latest before any manifest")
	require.False(t, ok, "Latest should report none published yet")

	m := csapi.Manifest{CheckpointID: "abc", CheckpointTime: time.Now().UTC(), SequencePoint: 42}
	require.NoError(t, b.PutManifest(ctx, m), "PutManifest")

	got, ok, err := b.Latest(ctx)
	require.NoError(t, err, "Latest")
	require.True(t, ok, "Latest should report a published manifest")
	require.Equal(t, m.CheckpointID, got.CheckpointID)
	require.Equal(t, m.SequencePoint, got.SequencePoint)

	// A second publish replaces the first.
	m2 := csapi.Manifest{CheckpointID: "def", CheckpointTime: time.Now().UTC(), SequencePoint: 99}
	require.NoError(t, b.PutManifest(ctx, m2), "PutManifest (second)")
	got2, ok, err := b.Latest(ctx)
	require.NoError(t, err, "Latest (second)")
	require.True(t, ok)
	require.Equal(t, m2.CheckpointID, got2.CheckpointID)
}
