package fetch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashplayd/internal/fetch"
	"dashplayd/internal/logger"
)

func TestCacheGetSet(t *testing.T) {
	c := fetch.NewCache(logger.Nop(), time.Minute, 0)

	_, found := c.Get("a")
	assert.False(t, found)

	c.Set("a", []byte("one"))
	data, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "one", string(data))
}

func TestCacheTTLExpiry(t *testing.T) {
	c := fetch.NewCache(logger.Nop(), 30*time.Millisecond, 0)

	c.Set("a", []byte("one"))
	_, found := c.Get("a")
	require.True(t, found)

	time.Sleep(60 * time.Millisecond)
	_, found = c.Get("a")
	assert.False(t, found, "entry past its TTL reads as a miss")
}

func TestCacheByteBound(t *testing.T) {
	c := fetch.NewCache(logger.Nop(), time.Minute, 10)

	c.Set("a", []byte("aaaa"))
	time.Sleep(2 * time.Millisecond) // ensure distinct insertion times
	c.Set("b", []byte("bbbb"))
	time.Sleep(2 * time.Millisecond)
	c.Set("c", []byte("cccc"))

	_, found := c.Get("a")
	assert.False(t, found, "oldest entry evicted to make room")

	_, found = c.Get("c")
	assert.True(t, found)
	assert.Equal(t, 2, c.Len())
}

func TestCacheRejectsOversizedPayload(t *testing.T) {
	c := fetch.NewCache(logger.Nop(), time.Minute, 4)

	c.Set("big", []byte("too large"))
	_, found := c.Get("big")
	assert.False(t, found)
	assert.Equal(t, 0, c.Len())
}

func TestCacheOverwriteAdjustsUsage(t *testing.T) {
	c := fetch.NewCache(logger.Nop(), time.Minute, 8)

	c.Set("a", []byte("aaaa"))
	c.Set("a", []byte("bbbb"))
	assert.Equal(t, 1, c.Len())

	data, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "bbbb", string(data))

	// A second 4-byte entry still fits, so nothing was double-counted.
	c.Set("b", []byte("cccc"))
	_, found = c.Get("a")
	assert.True(t, found)
}
