package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/singleflight"

	"github.com/kiesman99/tilemosaic/internal/metrics"
)

// Cache keeps fetched tile bytes in memory across mosaics. Absent tiles are cached
// as well. Concurrent requests for the same tile share one network fetch, which is
// not canceled when one of the requests gives up.
type Cache struct {
	items   *ccache.Cache[[]byte]
	flight  singleflight.Group
	ttl     time.Duration
	metrics *metrics.Collector
}

// NewCache creates a cache holding at most maxItems tiles for ttl each.
func NewCache(maxItems int64, ttl time.Duration, m *metrics.Collector) *Cache {
	return &Cache{
		items:   ccache.New(ccache.Configure[[]byte]().MaxSize(maxItems).ItemsToPrune(uint32(max(maxItems/20, 1)))),
		ttl:     ttl,
		metrics: m,
	}
}

// Wrap returns a Fetcher serving next through the cache. namespace separates tile
// sources sharing the cache, typically the URL template.
func (c *Cache) Wrap(next Fetcher, namespace string) Fetcher {
	return &cachedFetcher{cache: c, next: next, namespace: namespace}
}

// Len returns the number of cached tiles.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Close stops the cache's background worker.
func (c *Cache) Close() {
	c.items.Stop()
}

type cachedFetcher struct {
	cache     *Cache
	next      Fetcher
	namespace string
}

func (cf *cachedFetcher) Fetch(ctx context.Context, t maptile.Tile) ([]byte, error) {
	c := cf.cache
	key := fmt.Sprintf("%s|%d/%d/%d", cf.namespace, t.Z, t.X, t.Y)

	if item := c.items.Get(key); item != nil && !item.Expired() {
		c.metrics.ObserveCache(true)
		return item.Value(), nil
	}
	c.metrics.ObserveCache(false)

	// the shared fetch outlives the caller that started it; the fetcher's request
	// timeout bounds it
	ch := c.flight.DoChan(key, func() (any, error) {
		data, err := cf.next.Fetch(context.WithoutCancel(ctx), t)
		if err != nil {
			return nil, err
		}
		c.items.Set(key, data, c.ttl)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}
