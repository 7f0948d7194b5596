package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_GetPut(t *testing.T) {
	c := New[string](10, 0, nil)

	c.Put("a", "alpha")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2, 0, nil)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a is now most recent
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_UpdateExisting(t *testing.T) {
	c := New[int](2, 0, nil)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10)
	c.Put("c", 3)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRU_ExpiresAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := New[string](10, time.Hour, clock)

	c.Put("a", "alpha")

	clock.Advance(59 * time.Minute)
	_, ok := c.Get("a")
	assert.True(t, ok, "entry should still be live before ttl")

	clock.Advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry should expire at ttl")
	assert.Zero(t, c.Len())
}

func TestLRU_PutResetsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string](10, time.Hour, clock)

	c.Put("a", "v1")
	clock.Advance(45 * time.Minute)
	c.Put("a", "v2")
	clock.Advance(45 * time.Minute)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestLRU_DeleteAndPurge(t *testing.T) {
	c := New[int](10, 0, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	assert.True(t, c.Delete("b"))
	assert.False(t, c.Delete("b"))
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 2, c.Purge())
	assert.Zero(t, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	// Still usable after a purge.
	c.Put("d", 4)
	got, ok := c.Get("d")
	require.True(t, ok)
	assert.Equal(t, 4, got)
}

func TestLRU_MinimumCapacity(t *testing.T) {
	c := New[int](0, 0, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_ConcurrentAccess(t *testing.T) {
	c := New[int](50, time.Minute, nil)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("k%d", (g*200+i)%75)
				c.Put(key, i)
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
