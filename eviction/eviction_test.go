package eviction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distcache/lls/hash"
)

func TestEffectiveLastAccessPenalizesMoreReplicas(t *testing.T) {
	cfg := Config{ContentLifetime: 24 * time.Hour, MachineRisk: 0.1}
	base := time.Now()

	lowReplica := EffectiveLastAccess(base, time.Time{}, 100, 1, cfg)
	highReplica := EffectiveLastAccess(base, time.Time{}, 100, 5, cfg)

	require.True(t, highReplica.Before(lowReplica), "more replicas should make a candidate more evictable (earlier effective time)")
}

func TestEffectiveLastAccessPenalizesLargerSize(t *testing.T) {
	cfg := Config{ContentLifetime: 24 * time.Hour, MachineRisk: 0.1}
	base := time.Now()

	small := EffectiveLastAccess(base, time.Time{}, 10, 2, cfg)
	large := EffectiveLastAccess(base, time.Time{}, 10_000_000, 2, cfg)

	require.True(t, large.Before(small), "larger content should be more evictable per byte freed")
}

func TestEffectiveLastAccessUsesLaterOfLocalAndDB(t *testing.T) {
	cfg := Config{ContentLifetime: time.Hour, MachineRisk: 0.1}
	local := time.Now().Add(-time.Hour)
	db := time.Now()

	eff := EffectiveLastAccess(local, db, 1, 1, cfg)
	effFromLocalOnly := EffectiveLastAccess(local, time.Time{}, 1, 1, cfg)
	require.True(t, eff.After(effFromLocalOnly), "a more recent DB last-access should push the effective time later")
}

func mkLookup(db map[hash.ContentHash]struct {
	size     uint64
	access   time.Time
	replicas int
}) DBLookup {
	return func(ctx context.Context, h hash.ContentHash) (uint64, time.Time, int, error) {
		e, ok := db[h]
		if !ok {
			return 0, time.Time{}, 0, nil
		}
		return e.size, e.access, e.replicas, nil
	}
}

func TestGetHashesInEvictionOrderAscending(t *testing.T) {
	now := time.Now()
	var h1, h2, h3 hash.ContentHash
	h1[0], h2[0], h3[0] = 1, 2, 3

	candidates := []Candidate{
		{Hash: h1, LocalLastAccess: now},
		{Hash: h2, LocalLastAccess: now.Add(-48 * time.Hour)},
		{Hash: h3, LocalLastAccess: now.Add(-time.Hour)},
	}
	lookup := mkLookup(map[hash.ContentHash]struct {
		size     uint64
		access   time.Time
		replicas int
	}{
		h1: {size: 1, access: now, replicas: 1},
		h2: {size: 1, access: now.Add(-48 * time.Hour), replicas: 1},
		h3: {size: 1, access: now.Add(-time.Hour), replicas: 1},
	})

	cfg := Config{
		EvictionPoolSize:        10,
		EvictionWindowSize:      10,
		EvictionRemovalFraction: 1,
		EvictionDiscardFraction: 0,
		ContentLifetime:         time.Hour,
		MachineRisk:             0.1,
	}
	stream := GetHashesInEvictionOrder(candidates, lookup, cfg, false)

	var order []hash.ContentHash
	for {
		c, ok, err := stream.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		order = append(order, c.Hash)
	}
	require.Equal(t, []hash.ContentHash{h2, h3, h1}, order, "oldest-accessed candidate should be most evictable and emitted first")
}

func TestGetHashesInEvictionOrderRespectsMinAge(t *testing.T) {
	now := time.Now()
	var h1 hash.ContentHash
	h1[0] = 1

	candidates := []Candidate{{Hash: h1, LocalLastAccess: now}}
	lookup := mkLookup(map[hash.ContentHash]struct {
		size     uint64
		access   time.Time
		replicas int
	}{
		h1: {size: 1, access: now, replicas: 1},
	})

	cfg := Config{
		EvictionPoolSize:        10,
		EvictionWindowSize:      10,
		EvictionRemovalFraction: 1,
		ContentLifetime:         0,
		MachineRisk:             0.1,
		EvictionMinAge:          24 * time.Hour,
	}
	stream := GetHashesInEvictionOrder(candidates, lookup, cfg, false)

	_, ok, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok, "a candidate younger than EvictionMinAge must not be emitted")
}

func TestGetHashesInEvictionOrderEmptyInput(t *testing.T) {
	cfg := Config{EvictionPoolSize: 10, EvictionWindowSize: 10, ContentLifetime: time.Hour, MachineRisk: 0.1}
	stream := GetHashesInEvictionOrder(nil, mkLookup(nil), cfg, false)
	_, ok, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
