package eonet

import (
	"context"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/cache"
	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CachedClient wraps an EventFetcher with a TTL-bounded LRU keyed by query.
// Failed fetches are never cached. Returned documents are shared between
// callers and must not be modified.
type CachedClient struct {
	inner   domain.EventFetcher
	cache   *cache.LRU[domain.EventsDocument]
	metrics *observability.Metrics
}

// NewCachedClient creates a cache decorator around a fetcher. A nil clock
// uses real time.
func NewCachedClient(inner domain.EventFetcher, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedClient {
	return &CachedClient{
		inner:   inner,
		cache:   cache.New[domain.EventsDocument](maxEntries, ttl, clock),
		metrics: metrics,
	}
}

func (c *CachedClient) FetchEvents(ctx context.Context, q domain.Query) (domain.EventsDocument, error) {
	key := q.Key()
	if doc, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookups.WithLabelValues("events", "hit").Inc()
		return doc, nil
	}
	c.metrics.CacheLookups.WithLabelValues("events", "miss").Inc()

	doc, err := c.inner.FetchEvents(ctx, q)
	if err != nil {
		return doc, err
	}
	c.cache.Put(key, doc)
	return doc, nil
}

// Invalidate drops every cached response and returns how many were dropped.
func (c *CachedClient) Invalidate() int {
	return c.cache.Purge()
}
