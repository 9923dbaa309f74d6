package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

func newTestCache(now *time.Time, opts ...MemoryOption) *MemoryCache {
	opts = append([]MemoryOption{
		WithMemoryCleanup(0),
		WithMemoryClock(func() time.Time { return *now }),
	}, opts...)
	return NewMemoryCache(opts...)
}

func TestMemoryRoundTripsLikeRedis(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	c := newTestCache(&now)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "p", point{X: 1, Y: 2.5}, 0))
	var p point
	require.NoError(t, c.Get(ctx, "p", &p))
	assert.Equal(t, point{X: 1, Y: 2.5}, p)

	require.NoError(t, c.Set(ctx, "s", "raw", 0))
	var s string
	require.NoError(t, c.Get(ctx, "s", &s))
	assert.Equal(t, "raw", s)

	var f float64
	require.NoError(t, c.Set(ctx, "f", 101.25, 0))
	require.NoError(t, c.Get(ctx, "f", &f))
	assert.Equal(t, 101.25, f)

	assert.ErrorIs(t, c.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	c := newTestCache(&now)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	var s string
	assert.ErrorIs(t, c.Get(ctx, "k", &s), ErrCacheMiss)
	ok, _ = c.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryKeysAndDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	c := newTestCache(&now)
	defer c.Close()

	for _, k := range []string{"entry_ts:AAA", "entry_ts:BBB", "pending:1"} {
		require.NoError(t, c.Set(ctx, k, "x", 0))
	}
	keys, err := c.Keys(ctx, BuildPattern("entry_ts"))
	require.NoError(t, err)
	assert.Equal(t, []string{"entry_ts:AAA", "entry_ts:BBB"}, keys)
	assert.Equal(t, "AAA", TrimKey("entry_ts", keys[0]))

	require.NoError(t, c.Delete(ctx, "entry_ts:AAA", "nope"))
	keys, _ = c.Keys(ctx, "entry_ts:*")
	assert.Equal(t, []string{"entry_ts:BBB"}, keys)

	_, err = c.Keys(ctx, "[")
	assert.Error(t, err)
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	c := newTestCache(&now, WithMemoryMaxSize(2))
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	now = now.Add(time.Second)
	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	now = now.Add(time.Second)
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}
