package lls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	clapi "github.com/distcache/lls/contentlocation/api"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

func TestDescendingLastAccessCandidatesOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	cfg := baseTestConfig()
	h := newTestHarness(t, cfg)

	var older, newer hash.ContentHash
	older[0], newer[0] = 1, 2
	now := time.Now()

	require.NoError(t, h.db.ApplyAdd(ctx, machine.ID(cfg.LocalMachineID), []clapi.HashSize{{Hash: older, Size: 1}}, false, now.Add(-time.Hour)))
	require.NoError(t, h.db.ApplyAdd(ctx, machine.ID(cfg.LocalMachineID), []clapi.HashSize{{Hash: newer, Size: 1}}, false, now))

	candidates, err := h.core.descendingLastAccessCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, newer, candidates[0].Hash)
	require.Equal(t, older, candidates[1].Hash)
}

func TestPickReplicationTargetSkipsLocalAndExistingHolders(t *testing.T) {
	cfg := baseTestConfig()
	cfg.LocalMachineID = 1
	h := newTestHarness(t, cfg)

	h.cs.Upsert(machine.ID(2), "node-2:1234", true, time.Now())
	h.cs.Upsert(machine.ID(3), "node-3:1234", true, time.Now())

	locs := machine.NewBitSet()
	locs.Add(machine.ID(1))
	locs.Add(machine.ID(2))

	target, ok := h.core.pickReplicationTarget(locs)
	require.True(t, ok)
	require.Equal(t, machine.ID(3), target)
}

func TestPickReplicationTargetSkipsInactiveMachines(t *testing.T) {
	cfg := baseTestConfig()
	cfg.LocalMachineID = 1
	h := newTestHarness(t, cfg)

	h.cs.Upsert(machine.ID(2), "node-2:1234", false, time.Now())

	locs := machine.NewBitSet()
	locs.Add(machine.ID(1))

	_, ok := h.core.pickReplicationTarget(locs)
	require.False(t, ok, "an inactive machine should not be chosen as a replication target")
}

func TestRunProactiveReplicationCopiesUnderReplicatedContent(t *testing.T) {
	ctx := context.Background()
	cfg := baseTestConfig()
	cfg.LocalMachineID = 1
	cfg.ProactiveCopyLocationsThreshold = 2
	cfg.ProactiveReplicationCopyLimit = 5
	cfg.DelayForProactiveReplication = 0
	h := newTestHarness(t, cfg)
	h.core.recordPostInit(nil)

	h.cs.Upsert(machine.ID(2), "node-2:1234", true, time.Now())

	var hh hash.ContentHash
	hh[0] = 7
	require.NoError(t, h.db.ApplyAdd(ctx, machine.ID(1), []clapi.HashSize{{Hash: hh, Size: 1}}, false, time.Now()))

	h.core.runProactiveReplication(ctx)

	require.Len(t, h.copies, 1)
	require.Equal(t, hh, h.copies[0].hash)
	require.Equal(t, machine.ID(2), h.copies[0].target)
}

func TestRunProactiveReplicationSkipsContentAtThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := baseTestConfig()
	cfg.LocalMachineID = 1
	cfg.ProactiveCopyLocationsThreshold = 1
	cfg.ProactiveReplicationCopyLimit = 5
	h := newTestHarness(t, cfg)
	h.core.recordPostInit(nil)

	h.cs.Upsert(machine.ID(2), "node-2:1234", true, time.Now())

	var hh hash.ContentHash
	hh[0] = 8
	require.NoError(t, h.db.ApplyAdd(ctx, machine.ID(1), []clapi.HashSize{{Hash: hh, Size: 1}}, false, time.Now()))

	h.core.runProactiveReplication(ctx)

	require.Empty(t, h.copies, "content already at or above threshold replicas should not be copied")
}
