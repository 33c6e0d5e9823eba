package lls

import (
	"context"
	"sync"

	"github.com/distcache/lls/centralstorage/localdisk"
	"github.com/distcache/lls/checkpoint"
	"github.com/distcache/lls/clusterstate"
	"github.com/distcache/lls/contentlocation/badgerdb"
	esapi "github.com/distcache/lls/eventstore/api"
	"github.com/distcache/lls/eventstore/memstore"
	gsapi "github.com/distcache/lls/globalstore/api"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
	"github.com/distcache/lls/reputation"
)

// fakeGlobal is a scriptable gsapi.Client test double: tests set the
// fields they care about and read back the *Calls counters.
type fakeGlobal struct {
	mu sync.Mutex

	state    gsapi.CheckpointState
	stateErr error

	getBulkResult []gsapi.LocationEntry
	getBulkErr    error

	registerCalls int
	lastRegister  []gsapi.HashSize

	updateClusterStateCalls int
	lastClusterStateUpdate  gsapi.ClusterStateUpdate

	invalidateCalls int
}

var _ gsapi.Client = (*fakeGlobal)(nil)

func (f *fakeGlobal) GetCheckpointState(context.Context) (gsapi.CheckpointState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.stateErr
}

func (f *fakeGlobal) ReleaseRoleIfNecessary(context.Context) (gsapi.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Role, nil
}

func (f *fakeGlobal) UpdateClusterState(_ context.Context, state gsapi.ClusterStateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateClusterStateCalls++
	f.lastClusterStateUpdate = state
	return nil
}

func (f *fakeGlobal) RegisterLocalLocation(_ context.Context, _ machine.ID, items []gsapi.HashSize) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	f.lastRegister = items
	return nil
}

func (f *fakeGlobal) GetBulk(context.Context, []hash.ContentHash) ([]gsapi.LocationEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getBulkResult, f.getBulkErr
}

func (f *fakeGlobal) InvalidateLocalMachine(context.Context, machine.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidateCalls++
	return nil
}

func (f *fakeGlobal) PutBlob(context.Context, []byte) (string, error) { return "", nil }
func (f *fakeGlobal) GetBlob(context.Context, string) ([]byte, error)  { return nil, nil }

// fakeLocalStore is a minimal in-memory LocalContentStore, sorted by
// ascending ShortHash on every walk like dirstore's real filesystem scan.
type fakeLocalStore struct {
	items []localItem
}

type localItem struct {
	h    hash.ContentHash
	size uint64
}

func (f *fakeLocalStore) add(h hash.ContentHash, size uint64) {
	f.items = append(f.items, localItem{h, size})
}

func (f *fakeLocalStore) IterateInventory(_ context.Context, from hash.ShortHash, fn func(h hash.ContentHash, size uint64) (bool, error)) error {
	sorted := append([]localItem{}, f.items...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].h.Less(sorted[i].h) {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	for _, it := range sorted {
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

// testHarness bundles a Core with real in-process collaborators (the same
// components the production packages provide) and a scriptable fake for
// the one genuinely external dependency, the Global Store.
type testHarness struct {
	core   *Core
	db     *badgerdb.DB
	global *fakeGlobal
	cs     *clusterstate.State
	local  *fakeLocalStore

	mu      sync.Mutex
	copies  []copyCall
	copyErr error
}

type copyCall struct {
	hash   hash.ContentHash
	target machine.ID
}

type testingT interface {
	Helper()
	TempDir() string
}

func newTestHarness(t testingT, cfg Config) *testHarness {
	t.Helper()

	db, err := badgerdb.New(&badgerdb.Config{Dir: ""})
	if err != nil {
		panic(err)
	}
	db.SetWriteable(true)
	cs := clusterstate.New()
	consumer := NewEventConsumer(db, cs)
	store := memstore.New(consumer)

	backend, err := localdisk.New(&localdisk.Config{Dir: t.TempDir()})
	if err != nil {
		panic(err)
	}
	mgr := checkpoint.New(db, backend)

	global := &fakeGlobal{}
	local := &fakeLocalStore{}
	h := &testHarness{db: db, global: global, cs: cs, local: local}

	deps := Deps{
		ClusterState: cs,
		ContentDB:    db,
		EventStore:   store,
		NewEventStore: func() (esapi.Store, error) {
			return memstore.New(consumer), nil
		},
		Global:     global,
		Checkpoint: mgr,
		Reputation: reputation.New(),
		LocalStore: local,
		CopyFunc: func(_ context.Context, hh hash.ContentHash, target machine.ID) error {
			h.mu.Lock()
			h.copies = append(h.copies, copyCall{hh, target})
			err := h.copyErr
			h.mu.Unlock()
			return err
		},
	}

	if cfg.WorkingDir == "" {
		cfg.WorkingDir = t.TempDir()
	}
	h.core = New(cfg, deps)
	return h
}
