package lls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gsapi "github.com/distcache/lls/globalstore/api"
)

func TestRestoreSkipsWhenNoCheckpointAvailable(t *testing.T) {
	h := newTestHarness(t, baseTestConfig())
	state := gsapi.CheckpointState{CheckpointAvailable: false}

	err := h.core.restore(context.Background(), state, time.Now())
	require.NoError(t, err)
	require.True(t, h.core.firstRestoreDone)
	require.Empty(t, h.core.lastCheckpointID)
}

func TestRestoreSkipsFirstRestoreWithinAgeThreshold(t *testing.T) {
	cfg := baseTestConfig()
	cfg.RestoreCheckpointAgeThreshold = time.Hour
	h := newTestHarness(t, cfg)

	now := time.Now()
	state := gsapi.CheckpointState{
		CheckpointAvailable: true,
		CheckpointID:        "ckpt-1",
		CheckpointTime:      now.Add(-time.Minute),
	}

	err := h.core.restore(context.Background(), state, now)
	require.NoError(t, err)
	require.True(t, h.core.firstRestoreDone)
	require.Empty(t, h.core.lastCheckpointID, "a fresh-enough first checkpoint should be skipped, not fetched")
}

func TestRestoreFetchesWhenFirstRestoreExceedsAgeThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := baseTestConfig()
	cfg.RestoreCheckpointAgeThreshold = time.Minute
	h := newTestHarness(t, cfg)

	checkpointID, err := h.core.deps.Checkpoint.Create(ctx, 5, time.Now())
	require.NoError(t, err)

	now := time.Now()
	state := gsapi.CheckpointState{
		CheckpointAvailable: true,
		CheckpointID:        checkpointID,
		CheckpointTime:      now.Add(-time.Hour),
	}

	err = h.core.restore(ctx, state, now)
	require.NoError(t, err)
	require.Equal(t, checkpointID, h.core.lastCheckpointID)
}

func TestRestoreSkipsSameCheckpointIDTwice(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, baseTestConfig())

	checkpointID, err := h.core.deps.Checkpoint.Create(ctx, 5, time.Now())
	require.NoError(t, err)

	now := time.Now()
	state := gsapi.CheckpointState{
		CheckpointAvailable: true,
		CheckpointID:        checkpointID,
		CheckpointTime:      now.Add(-time.Hour),
	}
	require.NoError(t, h.core.restore(ctx, state, now))
	require.Equal(t, checkpointID, h.core.lastCheckpointID)

	h.core.firstRestoreDone = false // simulate a later heartbeat revisiting the same checkpoint
	require.NoError(t, h.core.restore(ctx, state, now))
	require.Equal(t, checkpointID, h.core.lastCheckpointID, "re-observing the same checkpoint id must not re-fetch")
}

func TestRestoreTriggersReconcileOnlyOnce(t *testing.T) {
	ctx := context.Background()
	cfg := baseTestConfig()
	cfg.EnableReconciliation = true
	cfg.EnableProactiveReplication = false
	h := newTestHarness(t, cfg)
	h.core.recordPostInit(nil)

	checkpointID, err := h.core.deps.Checkpoint.Create(ctx, 5, time.Now())
	require.NoError(t, err)

	now := time.Now()
	state := gsapi.CheckpointState{
		CheckpointAvailable: true,
		CheckpointID:        checkpointID,
		CheckpointTime:      now.Add(-time.Hour),
	}
	require.NoError(t, h.core.restore(ctx, state, now))
	require.True(t, h.core.reconcileTriggered)
}
