package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	csapi "github.com/distcache/lls/centralstorage/api"
	"github.com/distcache/lls/centralstorage/localdisk"
	clapi "github.com/distcache/lls/contentlocation/api"
	"github.com/distcache/lls/contentlocation/badgerdb"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

// failingManifestBackend wraps a real csapi.Backend but always fails
// PutManifest, so Create's orphaned-blob cleanup path can be exercised
// without faking the whole storage layer.
type failingManifestBackend struct {
	csapi.Backend
	deletedID string
}

func (f *failingManifestBackend) PutManifest(context.Context, csapi.Manifest) error {
	return errors.New("manifest publish rejected")
}

func (f *failingManifestBackend) DeleteBlob(ctx context.Context, checkpointID string) error {
	f.deletedID = checkpointID
	return f.Backend.DeleteBlob(ctx, checkpointID)
}

func newManager(t *testing.T) (*Manager, *badgerdb.DB) {
	t.Helper()
	db, err := badgerdb.New(&badgerdb.Config{Dir: ""})
	require.NoError(t, err)
	db.SetWriteable(true)
	t.Cleanup(func() { _ = db.Close() })

	backend, err := localdisk.New(&localdisk.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	return New(db, backend), db
}

func TestCreatePublishesBlobAndManifest(t *testing.T) {
	ctx := context.Background()
	mgr, db := newManager(t)

	var h hash.ContentHash
	h[0] = 1
	require.NoError(t, db.ApplyAdd(ctx, machine.ID(1), []clapi.HashSize{{Hash: h, Size: 10}}, false, time.Now()))

	checkpointID, err := mgr.Create(ctx, 42, time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, checkpointID)

	manifest, ok, err := mgr.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, checkpointID, manifest.CheckpointID)
	require.Equal(t, uint64(42), manifest.SequencePoint)
}

func TestRestoreInstallsSnapshotIntoFreshDB(t *testing.T) {
	ctx := context.Background()
	mgr, db := newManager(t)

	var h hash.ContentHash
	h[0] = 2
	require.NoError(t, db.ApplyAdd(ctx, machine.ID(3), []clapi.HashSize{{Hash: h, Size: 77}}, false, time.Now()))

	checkpointID, err := mgr.Create(ctx, 7, time.Now())
	require.NoError(t, err)

	freshDB, err := badgerdb.New(&badgerdb.Config{Dir: ""})
	require.NoError(t, err)
	defer freshDB.Close()
	freshMgr := New(freshDB, mgr.storage)

	require.NoError(t, freshMgr.Restore(ctx, checkpointID))

	e, err := freshDB.Get(ctx, h)
	require.NoError(t, err)
	require.False(t, e.IsMissing())
	require.Equal(t, uint64(77), e.Size)
	require.True(t, e.Locations.Contains(machine.ID(3)))
}

func TestCreateCleansUpOrphanedBlobWhenManifestPublishFails(t *testing.T) {
	ctx := context.Background()
	db, err := badgerdb.New(&badgerdb.Config{Dir: ""})
	require.NoError(t, err)
	db.SetWriteable(true)
	t.Cleanup(func() { _ = db.Close() })

	real, err := localdisk.New(&localdisk.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	failing := &failingManifestBackend{Backend: real}
	mgr := New(db, failing)

	_, err = mgr.Create(ctx, 1, time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "publish manifest failed")
	require.NotEmpty(t, failing.deletedID, "the orphaned blob must be cleaned up")

	_, getErr := real.GetBlob(ctx, failing.deletedID)
	require.Error(t, getErr, "the cleaned-up blob should no longer be fetchable")
}

func TestLatestWithNoCheckpointsIsNotFound(t *testing.T) {
	mgr, _ := newManager(t)
	_, ok, err := mgr.Latest(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseSucceedsWhenStorageHasNoClose(t *testing.T) {
	mgr, _ := newManager(t)
	require.NoError(t, mgr.Close())
}
