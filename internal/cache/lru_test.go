package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_BasicGetPut(t *testing.T) {
	c := NewLRU[int64, time.Time](10, 0)
	ts := time.Unix(1_700_000_000, 0).UTC()

	c.Put(100, ts)

	v, ok := c.Get(100)
	require.True(t, ok)
	assert.Equal(t, ts, v)

	_, ok = c.Get(101)
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](3, 0)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a")
	c.Put("d", 4)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 3, c.Len())
}

func TestLRU_TTLExpiration(t *testing.T) {
	now := time.Now()
	c := NewLRU[string, bool](10, 5*time.Minute, WithClock(func() time.Time { return now }))

	c.Put("a", true)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(6 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry should have expired")
	assert.Equal(t, 0, c.Len())
}

func TestLRU_ZeroTTLNeverExpires(t *testing.T) {
	now := time.Now()
	c := NewLRU[string, bool](10, 0, WithClock(func() time.Time { return now }))

	c.Put("a", true)
	now = now.Add(24 * 365 * time.Hour)

	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestLRU_UpdateExisting(t *testing.T) {
	c := NewLRU[string, int](10, time.Minute)

	c.Put("a", 1)
	c.Put("a", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_GetMany(t *testing.T) {
	c := NewLRU[int64, string](10, 0)
	c.Put(1, "one")
	c.Put(3, "three")

	found, missing := c.GetMany([]int64{1, 2, 3, 4, 1})

	assert.Equal(t, map[int64]string{1: "one", 3: "three"}, found)
	assert.Equal(t, []int64{2, 4}, missing)
}

func TestLRU_StatsAndHooks(t *testing.T) {
	var hookHits, hookMisses int
	c := NewLRU[string, bool](10, time.Minute,
		WithHitMissHooks(func() { hookHits++ }, func() { hookMisses++ }))

	c.Put("a", true)
	c.Get("a")
	c.Get("a")
	c.Get("miss")
	c.GetMany([]string{"a", "other"})

	hits, misses := c.Stats()
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, 3, hookHits)
	assert.Equal(t, 2, hookMisses)
}

func TestLRU_CapacityFloor(t *testing.T) {
	c := NewLRU[string, int](0, 0)
	c.Put("a", 1)
	c.Put("b", 2)
	assert.Equal(t, 1, c.Len())
}
