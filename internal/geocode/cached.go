package geocode

import (
	"context"

	"github.com/homepin/mapsession/internal/geo"
	"github.com/homepin/mapsession/pkg/core"
)

// Cache stores successful lookups keyed by a rounded coordinate.
type Cache interface {
	Get(key string) (Response, bool)
	Put(key string, resp Response) error
}

// Cached wraps a Resolver with a Cache. Only OK responses are stored, so a
// transient failure is retried on the next click at the same spot.
type Cached struct {
	inner     Resolver
	cache     Cache
	precision int
	onError   func(error)
}

// NewCached returns a caching resolver. precision is the number of decimals kept in the key.
func NewCached(inner Resolver, cache Cache, precision int) *Cached {
	return &Cached{inner: inner, cache: cache, precision: precision}
}

// OnStoreError sets a callback for cache write failures. They never fail the lookup.
func (c *Cached) OnStoreError(fn func(error)) {
	c.onError = fn
}

// ReverseGeocode serves from cache when possible.
func (c *Cached) ReverseGeocode(ctx context.Context, at core.Coordinate) (Response, error) {
	key := geo.CellKey(at, c.precision)
	if resp, ok := c.cache.Get(key); ok {
		return resp, nil
	}

	resp, err := c.inner.ReverseGeocode(ctx, at)
	if err != nil {
		return resp, err
	}
	if resp.OK() {
		if err := c.cache.Put(key, resp); err != nil && c.onError != nil {
			c.onError(err)
		}
	}
	return resp, nil
}
