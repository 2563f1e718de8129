package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheFreshThenStaleThenGone(t *testing.T) {
	c := NewTTLCache(time.Hour)
	defer c.Close()

	c.Set("k", 42, 20*time.Millisecond, 60*time.Millisecond)

	v, fresh, ok := c.Get("k")
	require.True(t, ok)
	assert.True(t, fresh)
	assert.Equal(t, 42, v)

	time.Sleep(30 * time.Millisecond)
	v, fresh, ok = c.Get("k")
	require.True(t, ok)
	assert.False(t, fresh)
	assert.Equal(t, 42, v)

	time.Sleep(40 * time.Millisecond)
	_, _, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheMiss(t *testing.T) {
	c := NewTTLCache(time.Hour)
	defer c.Close()

	_, _, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestTTLCacheOverwrite(t *testing.T) {
	c := NewTTLCache(time.Hour)
	defer c.Close()

	c.Set("k", "old", time.Second, time.Minute)
	c.Set("k", "new", time.Second, time.Minute)
	v, fresh, ok := c.Get("k")
	require.True(t, ok)
	assert.True(t, fresh)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache(time.Hour)
	defer c.Close()

	c.Set("k", 1, time.Second, time.Minute)
	c.Delete("k")
	_, _, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTTLCacheFlushEvictsOnlyExpired(t *testing.T) {
	c := NewTTLCache(time.Hour)
	defer c.Close()

	c.Set("dead", 1, time.Millisecond, 5*time.Millisecond)
	c.Set("live", 2, time.Second, time.Minute)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, c.Flush())
	assert.Equal(t, 1, c.Len())
	_, _, ok := c.Get("live")
	assert.True(t, ok)
}
