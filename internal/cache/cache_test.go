package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homepin/mapsession/internal/geocode"
	"github.com/homepin/mapsession/pkg/core"
)

func ok(addr string) geocode.Response {
	return geocode.Response{
		Status:  geocode.StatusOK,
		Results: []geocode.Result{{FormattedAddress: addr}},
	}
}

func TestAddressCache_PutAndGet(t *testing.T) {
	cache := NewAddressCache(0)

	require.NoError(t, cache.Put("1,2", ok("a")))

	got, found := cache.Get("1,2")
	require.True(t, found, "expected to find key 1,2")
	assert.Equal(t, "a", got.Address())
}

func TestAddressCache_Get_NotFound(t *testing.T) {
	cache := NewAddressCache(0)

	_, found := cache.Get("nope")
	assert.False(t, found)

	hits, misses := cache.Stats()
	assert.Equal(t, 0, hits)
	assert.Equal(t, 1, misses)
}

func TestAddressCache_Overwrite(t *testing.T) {
	cache := NewAddressCache(2)

	require.NoError(t, cache.Put("k", ok("old")))
	require.NoError(t, cache.Put("k", ok("new")))

	got, _ := cache.Get("k")
	assert.Equal(t, "new", got.Address())
	assert.Equal(t, 1, cache.Len())
}

func TestAddressCache_EvictsOldest(t *testing.T) {
	cache := NewAddressCache(2)

	require.NoError(t, cache.Put("a", ok("a")))
	require.NoError(t, cache.Put("b", ok("b")))
	require.NoError(t, cache.Put("c", ok("c")))

	_, found := cache.Get("a")
	assert.False(t, found, "expected oldest entry to be evicted")
	_, found = cache.Get("c")
	assert.True(t, found)
	assert.Equal(t, 2, cache.Len())
}

func TestAddressCache_Purge(t *testing.T) {
	cache := NewAddressCache(0)
	require.NoError(t, cache.Put("a", ok("a")))
	cache.Get("a")

	n, err := cache.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, cache.Purge())

	n, err = cache.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
	hits, misses := cache.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestAddressCache_Concurrent(t *testing.T) {
	cache := NewAddressCache(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("%d,0", i)
			_ = cache.Put(key, ok(key))
			cache.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, cache.Len())
	hits, _ := cache.Stats()
	assert.Equal(t, 50, hits)
}

func TestAddressCache_BehindResolver(t *testing.T) {
	calls := 0
	inner := geocode.ResolverFunc(func(ctx context.Context, at core.Coordinate) (geocode.Response, error) {
		calls++
		return ok("123 Main St"), nil
	})
	cache := NewAddressCache(0)
	r := geocode.NewCached(inner, cache, 5)

	at := core.Coordinate{Lat: 35.3, Lng: -80.9}
	for i := 0; i < 3; i++ {
		resp, err := r.ReverseGeocode(context.Background(), at)
		require.NoError(t, err)
		assert.Equal(t, "123 Main St", resp.Address())
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.Len())
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter
	c.Inc()
	c.Inc()
	assert.Equal(t, 2, c.Value())
	c.Set(7)
	assert.Equal(t, 7, c.Value())
}
