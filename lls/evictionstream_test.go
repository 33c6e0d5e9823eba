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

func TestGetHashesInEvictionOrderStreamsOldestFirst(t *testing.T) {
	ctx := context.Background()
	cfg := baseTestConfig()
	h := newTestHarness(t, cfg)
	h.core.recordPostInit(nil)

	var older, newer hash.ContentHash
	older[0], newer[0] = 1, 2
	now := time.Now()

	require.NoError(t, h.db.ApplyAdd(ctx, machine.ID(cfg.LocalMachineID), []clapi.HashSize{{Hash: older, Size: 1}}, false, now.Add(-48*time.Hour)))
	require.NoError(t, h.db.ApplyAdd(ctx, machine.ID(cfg.LocalMachineID), []clapi.HashSize{{Hash: newer, Size: 1}}, false, now))

	stream, err := h.core.GetHashesInEvictionOrder(ctx, false)
	require.NoError(t, err)

	cand, ok, err := stream.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, older, cand.Hash, "the older, more evictable candidate should stream first")
}

func TestGetHashesInEvictionOrderEmptyDB(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t, baseTestConfig())
	h.core.recordPostInit(nil)

	stream, err := h.core.GetHashesInEvictionOrder(ctx, false)
	require.NoError(t, err)

	_, ok, err := stream.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
