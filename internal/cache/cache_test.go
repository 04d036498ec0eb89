package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute, 0)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v")))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Second, 0)
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v")))

	c.now = func() time.Time { return now.Add(2 * time.Second) }
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemory_Defaults(t *testing.T) {
	c := NewMemory(0, 0)
	assert.Equal(t, 5*time.Second, c.ttl)
	assert.Equal(t, DefaultMaxEntries, c.maxEntries)
}

func TestMemory_SetSweepsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Millisecond, 10_000)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := range 1000 {
		require.NoError(t, c.Set(ctx, RatingKey(strconv.Itoa(i)), []byte("v")))
	}
	require.Equal(t, 1000, c.Len())

	// none of the old keys is ever read again
	c.now = func() time.Time { return now.Add(20 * time.Millisecond) }
	require.NoError(t, c.Set(ctx, RatingKey("fresh"), []byte("v")))

	assert.Equal(t, 1, c.Len())
	_, ok, err := c.Get(ctx, RatingKey("fresh"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_BoundedSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour, 3)
	now := time.Now()
	tick := 0
	c.now = func() time.Time { tick++; return now.Add(time.Duration(tick) * time.Second) }

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, c.Set(ctx, k, []byte(k)))
	}

	assert.Equal(t, 3, c.Len())
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok, "the entry closest to expiry makes room")
	_, ok, _ = c.Get(ctx, "d")
	assert.True(t, ok)

	// overwriting a present key never evicts
	require.NoError(t, c.Set(ctx, "d", []byte("d2")))
	assert.Equal(t, 3, c.Len())
}

func TestNop_NeverHits(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRatingKey(t *testing.T) {
	assert.Equal(t, "hotchoc:rating:v1:abc", RatingKey("abc"))
}

func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	c := NewRedis(RedisConfig{Addr: addr, TTL: time.Minute})
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	key := RatingKey("redis-test")
	require.NoError(t, c.Set(ctx, key, []byte("v")))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
