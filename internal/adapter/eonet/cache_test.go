package eonet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock fetcher ---

type countingFetcher struct {
	calls int
	doc   domain.EventsDocument
	err   error
}

func (f *countingFetcher) FetchEvents(_ context.Context, _ domain.Query) (domain.EventsDocument, error) {
	f.calls++
	return f.doc, f.err
}

func newDoc(ids ...string) domain.EventsDocument {
	var doc domain.EventsDocument
	for _, id := range ids {
		doc.Events = append(doc.Events, domain.RawEvent{ID: id})
	}
	return doc
}

// --- CachedClient tests ---

func TestCachedClient_Hit(t *testing.T) {
	inner := &countingFetcher{doc: newDoc("EONET_1")}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedClient(inner, 4, time.Hour, clockwork.NewFakeClock(), metrics)

	d1, err := cached.FetchEvents(context.Background(), testQuery())
	require.NoError(t, err)
	d2, err := cached.FetchEvents(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("events", "hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("events", "miss")), 0)
}

func TestCachedClient_DistinctQueries(t *testing.T) {
	inner := &countingFetcher{doc: newDoc("EONET_1")}
	cached := NewCachedClient(inner, 4, time.Hour, nil, observability.NewMetricsForTesting())

	q2 := testQuery()
	q2.Status = "open"

	_, _ = cached.FetchEvents(context.Background(), testQuery())
	_, _ = cached.FetchEvents(context.Background(), q2)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedClient_Expires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	inner := &countingFetcher{doc: newDoc("EONET_1")}
	cached := NewCachedClient(inner, 4, time.Hour, clock, observability.NewMetricsForTesting())

	_, _ = cached.FetchEvents(context.Background(), testQuery())
	clock.Advance(time.Hour)
	_, _ = cached.FetchEvents(context.Background(), testQuery())

	assert.Equal(t, 2, inner.calls)
}

func TestCachedClient_ErrorsNotCached(t *testing.T) {
	inner := &countingFetcher{err: errors.New("upstream down")}
	cached := NewCachedClient(inner, 4, time.Hour, nil, observability.NewMetricsForTesting())

	_, err := cached.FetchEvents(context.Background(), testQuery())
	require.Error(t, err)

	inner.err = nil
	inner.doc = newDoc("EONET_9")
	doc, err := cached.FetchEvents(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, "EONET_9", doc.Events[0].ID)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedClient_Invalidate(t *testing.T) {
	inner := &countingFetcher{doc: newDoc("EONET_1")}
	cached := NewCachedClient(inner, 4, time.Hour, nil, observability.NewMetricsForTesting())

	_, _ = cached.FetchEvents(context.Background(), testQuery())
	assert.Equal(t, 1, cached.Invalidate())
	_, _ = cached.FetchEvents(context.Background(), testQuery())

	assert.Equal(t, 2, inner.calls)
}
