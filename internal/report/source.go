package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/observability"
)

// PartitionReader is the subset of the CSV store used for history.
type PartitionReader interface {
	ReadYear(year int) ([]domain.Row, error)
	ReadAll() ([]domain.Row, error)
}

// StoredSource reads rows from persisted CSV partitions.
type StoredSource struct {
	store PartitionReader
}

// NewStoredSource creates a source over the CSV store.
func NewStoredSource(store PartitionReader) *StoredSource {
	return &StoredSource{store: store}
}

func (s *StoredSource) Rows(_ context.Context, year int) ([]domain.Row, error) {
	if year == 0 {
		return s.store.ReadAll()
	}
	return s.store.ReadYear(year)
}

// LiveSource fetches the lookback window from the API on every call and
// normalizes it into rows. Pair it with a cached fetcher.
type LiveSource struct {
	fetcher  domain.EventFetcher
	lookback time.Duration
	status   string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewLiveSource creates a source covering the given lookback window.
func NewLiveSource(fetcher domain.EventFetcher, lookback time.Duration, status string, logger *slog.Logger, metrics *observability.Metrics) *LiveSource {
	return &LiveSource{fetcher: fetcher, lookback: lookback, status: status, logger: logger, metrics: metrics}
}

// Query is the API query the source issues.
func (s *LiveSource) Query() domain.Query {
	return domain.Query{Range: domain.LookbackRange(s.lookback), Status: s.status}
}

func (s *LiveSource) Rows(ctx context.Context, year int) ([]domain.Row, error) {
	doc, err := s.fetcher.FetchEvents(ctx, s.Query())
	if err != nil {
		return nil, fmt.Errorf("fetch live events: %w", err)
	}
	table, skipped := domain.Normalize(doc, domain.Now())
	for _, rec := range skipped {
		s.logger.Warn("skipping malformed record", "event_id", rec.EventID, "error", rec)
	}
	s.metrics.RecordsSkipped.Add(float64(len(skipped)))
	table = domain.Dedupe(table)
	if year != 0 {
		table = domain.PartitionByYear(table, 0)[year]
	}
	return domain.Flatten(table), nil
}
