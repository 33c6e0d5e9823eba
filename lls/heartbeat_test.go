package lls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	clapi "github.com/distcache/lls/contentlocation/api"
	gsapi "github.com/distcache/lls/globalstore/api"
	"github.com/distcache/lls/hash"
	"github.com/distcache/lls/machine"
)

func TestHeartbeatBodySetsWriteableOnRoleSwitchToMaster(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, baseTestConfig())
	h.global.state = gsapi.CheckpointState{Role: gsapi.RoleMaster}

	require.NoError(t, h.core.heartbeatBody(ctx, false))
	require.True(t, h.db.Writeable())
}

func TestHeartbeatBodyClearsWriteableOnRoleSwitchToWorker(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, baseTestConfig())
	h.db.SetWriteable(true)
	h.global.state = gsapi.CheckpointState{Role: gsapi.RoleWorker}

	require.NoError(t, h.core.heartbeatBody(ctx, false))
	require.False(t, h.db.Writeable())
}

func TestHeartbeatBodyMasterPushesClusterState(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, baseTestConfig())
	h.global.state = gsapi.CheckpointState{Role: gsapi.RoleMaster}

	require.NoError(t, h.core.heartbeatBody(ctx, false))
	require.Equal(t, 1, h.global.updateClusterStateCalls)
}

func TestHeartbeatBodyWorkerDoesNotPushClusterState(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, baseTestConfig())
	h.global.state = gsapi.CheckpointState{Role: gsapi.RoleWorker}

	require.NoError(t, h.core.heartbeatBody(ctx, false))
	require.Equal(t, 0, h.global.updateClusterStateCalls)
}

func TestHeartbeatBodyMasterCreatesCheckpointOnInterval(t *testing.T) {
	ctx := context.Background()
	cfg := baseTestConfig()
	cfg.CreateCheckpointInterval = 0
	h := newTestHarness(t, cfg)
	h.global.state = gsapi.CheckpointState{Role: gsapi.RoleMaster}

	var hh hash.ContentHash
	hh[0] = 1
	require.NoError(t, h.db.ApplyAdd(ctx, machine.ID(1), []clapi.HashSize{{Hash: hh, Size: 1}}, false, time.Now()))
	require.NoError(t, h.core.deps.EventStore.StartProcessing(ctx, 1))
	require.NoError(t, h.core.deps.EventStore.AddLocations(ctx, machine.ID(1), nil, false))

	require.NoError(t, h.core.heartbeatBody(ctx, false))

	manifest, ok, err := h.core.deps.Checkpoint.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok, "a checkpoint should have been published once a sequence point has been processed")
	require.NotEmpty(t, manifest.CheckpointID)
}

func TestHeartbeatBodyWorkerDoesNotCreateCheckpoint(t *testing.T) {
	ctx := context.Background()
	cfg := baseTestConfig()
	cfg.CreateCheckpointInterval = 0
	h := newTestHarness(t, cfg)
	h.global.state = gsapi.CheckpointState{Role: gsapi.RoleWorker}

	require.NoError(t, h.core.heartbeatBody(ctx, false))

	_, ok, err := h.core.deps.Checkpoint.Latest(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunHeartbeatGatedRecordsPostInit(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, baseTestConfig())
	h.global.state = gsapi.CheckpointState{Role: gsapi.RoleWorker}

	h.core.runHeartbeatGated(ctx, false)

	err := h.core.awaitPostInit(ctx)
	require.NoError(t, err)
}

func TestRunHeartbeatGatedDropsReentrantFire(t *testing.T) {
	h := newTestHarness(t, baseTestConfig())
	require.True(t, h.core.heartbeatGate.tryAcquire())
	defer h.core.heartbeatGate.release()

	// A second acquire attempt while the first is held must fail, mirroring
	// what runHeartbeatGated checks before running the body.
	require.False(t, h.core.heartbeatGate.tryAcquire())
}
