package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/observability"
)

// Store persists year partitions and raw snapshots.
type Store interface {
	ReadYear(year int) ([]domain.Row, error)
	WriteYear(year int, rows []domain.Row) error
	Years() ([]int, error)
	SaveRaw(r domain.DateRange, raw []byte) (string, error)
}

// Publisher forwards normalized occurrences to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, t domain.Table) (int, error)
}

// ChartRenderer renders the charts for a year from persisted data.
type ChartRenderer interface {
	Render(ctx context.Context, year int) ([]string, error)
}

// Report summarizes one run.
type Report struct {
	Range       domain.DateRange
	Events      int
	Occurrences int
	Skipped     int
	Years       []int
	RowsWritten int
	RawPath     string
	Published   int
	Charts      []string
	Duration    time.Duration
}

// Pipeline runs one fetch-normalize-merge-persist-chart pass.
type Pipeline struct {
	fetcher   domain.EventFetcher
	store     Store
	logger    *slog.Logger
	metrics   *observability.Metrics
	geocoder  domain.Geocoder
	publisher Publisher
	charts    ChartRenderer
	saveRaw   bool
}

// Option configures optional pipeline stages.
type Option func(*Pipeline)

// WithGeocoder enables reverse geocoding of occurrences before publishing.
func WithGeocoder(g domain.Geocoder) Option {
	return func(p *Pipeline) { p.geocoder = g }
}

// WithPublisher publishes every fetched occurrence after persistence.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithCharts renders charts after persistence. Chart failures are logged
// and do not fail the run.
func WithCharts(r ChartRenderer) Option {
	return func(p *Pipeline) { p.charts = r }
}

// WithRawSnapshots toggles saving the raw API response.
func WithRawSnapshots(enabled bool) Option {
	return func(p *Pipeline) { p.saveRaw = enabled }
}

// New creates a Pipeline with the given stages and observability.
func New(fetcher domain.EventFetcher, store Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes a single pass for the query. It returns domain.ErrNoEvents
// when the API has nothing for the range; nothing is written in that case.
func (p *Pipeline) Run(ctx context.Context, q domain.Query) (Report, error) {
	start := time.Now()
	report := Report{Range: q.Range}

	p.logger.Info("pipeline started", "range", q.Range.String(), "status", q.Status)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	doc, err := p.fetcher.FetchEvents(ctx, q)
	if err != nil {
		return report, fmt.Errorf("extract: %w", err)
	}

	table, skipped := domain.Normalize(doc, domain.Now())
	for _, s := range skipped {
		p.logger.Warn("skipping malformed record", "event_id", s.EventID, "error", s)
	}
	report.Events, report.Occurrences = table.Len()
	report.Skipped = len(skipped)
	p.metrics.RecordsSkipped.Add(float64(len(skipped)))
	p.metrics.OccurrencesNormalized.Add(float64(report.Occurrences))

	if report.Events == 0 {
		p.logger.Warn("no events returned", "range", q.Range.String())
		return report, domain.ErrNoEvents
	}

	table = domain.Dedupe(table)
	table = domain.EnrichWithGeocoding(ctx, table, p.geocoder, p.logger)

	if err := p.persist(table, &report); err != nil {
		return report, fmt.Errorf("load: %w", err)
	}

	if p.saveRaw && len(doc.Raw) > 0 {
		path, err := p.store.SaveRaw(q.Range, doc.Raw)
		if err != nil {
			return report, err
		}
		report.RawPath = path
	}

	if p.publisher != nil {
		n, err := p.publisher.Publish(ctx, table)
		if err != nil {
			return report, err
		}
		report.Published = n
		p.metrics.MessagesPublished.Add(float64(n))
	}

	p.renderCharts(ctx, &report)

	report.Duration = time.Since(start)
	p.metrics.RunDuration.Observe(report.Duration.Seconds())
	p.metrics.LastSuccess.SetToCurrentTime()
	p.logger.Info("pipeline finished",
		"events", report.Events,
		"occurrences", report.Occurrences,
		"skipped", report.Skipped,
		"years", report.Years,
		"rows_written", report.RowsWritten,
		"published", report.Published,
		"duration", report.Duration,
	)
	return report, nil
}

// persist merges the table into the stored year partitions. Every partition
// holding a fetched event is rewritten so event metadata stays consistent
// across years. Events without occurrences go to the current year's partition.
func (p *Pipeline) persist(table domain.Table, report *Report) error {
	stored, err := p.store.Years()
	if err != nil {
		return err
	}
	history := make(map[int]domain.Table, len(stored))
	for _, year := range stored {
		rows, err := p.store.ReadYear(year)
		if err != nil {
			return err
		}
		history[year] = domain.Unflatten(rows, time.Time{})
	}

	parts := domain.MergePartitions(history, table, domain.Now().Year())

	years := make([]int, 0, len(parts))
	for y := range parts {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, year := range years {
		if err := domain.Validate(parts[year]); err != nil {
			return fmt.Errorf("partition %d: %w", year, err)
		}
		rows := domain.Flatten(parts[year])
		if err := p.store.WriteYear(year, rows); err != nil {
			return err
		}
		report.RowsWritten += len(rows)
		p.metrics.RowsPersisted.Add(float64(len(rows)))
	}
	report.Years = years
	return nil
}

// renderCharts draws the most recent affected year. Failures are logged only.
func (p *Pipeline) renderCharts(ctx context.Context, report *Report) {
	if p.charts == nil || len(report.Years) == 0 {
		return
	}
	year := report.Years[len(report.Years)-1]
	paths, err := p.charts.Render(ctx, year)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Error("chart rendering failed, continuing", "year", year, "error", err)
		return
	}
	report.Charts = paths
}
