package volatile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/distcache/lls/hash"
)

func TestContainsExpiresAfterTTL(t *testing.T) {
	s := NewSet(time.Minute)
	now := time.Now()
	var h hash.ContentHash
	h[0] = 1

	s.Add(h, now)
	require.True(t, s.Contains(h, now.Add(30*time.Second)))
	require.False(t, s.Contains(h, now.Add(time.Minute+time.Second)))
}

func TestInvalidateRemovesUnconditionally(t *testing.T) {
	s := NewSet(time.Hour)
	now := time.Now()
	var h hash.ContentHash
	h[0] = 2

	s.Add(h, now)
	require.True(t, s.Contains(h, now))
	s.Invalidate(h)
	require.False(t, s.Contains(h, now))
}

func TestSweepDropsExpiredOnly(t *testing.T) {
	s := NewSet(time.Minute)
	now := time.Now()
	var expired, fresh hash.ContentHash
	expired[0] = 1
	fresh[0] = 2

	s.Add(expired, now.Add(-2*time.Minute))
	s.Add(fresh, now)
	require.Equal(t, 2, s.Len())

	s.Sweep(now)
	require.Equal(t, 1, s.Len())
	require.True(t, s.Contains(fresh, now))
}

func TestContainsUnknownHashIsFalse(t *testing.T) {
	s := NewSet(time.Minute)
	var h hash.ContentHash
	require.False(t, s.Contains(h, time.Now()))
}
