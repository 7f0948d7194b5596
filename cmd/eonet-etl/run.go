package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/eonet-etl/internal/adapter/eonet"
	kafkaadapter "github.com/couchcryptid/eonet-etl/internal/adapter/kafka"
	"github.com/couchcryptid/eonet-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/observability"
	"github.com/couchcryptid/eonet-etl/internal/pipeline"
	"github.com/couchcryptid/eonet-etl/internal/report"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Fetch a date range, merge it into the CSV partitions, and render charts.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start-date", Usage: "first day, YYYY-MM-DD (default: the day before end-date)"},
			&cli.StringFlag{Name: "end-date", Usage: "last day, YYYY-MM-DD (default: today)"},
			&cli.StringFlag{Name: "category", Usage: "restrict to one category id, e.g. wildfires"},
			&cli.IntFlag{Name: "limit", Usage: "maximum number of events to request"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			r, err := domain.ParseDateRange(c.String("start-date"), c.String("end-date"))
			if err != nil {
				return err
			}
			q := domain.Query{
				Range:    r,
				Status:   e.cfg.EONETStatus,
				Category: c.String("category"),
				Limit:    c.Int("limit"),
			}

			ctx, stop := signalContext(c.Context)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
			defer cancel()

			return e.run(ctx, q)
		},
	}
}

func (e *env) run(ctx context.Context, q domain.Query) error {
	metrics := observability.NewMetrics()
	defer e.pushMetrics(prometheus.DefaultGatherer)

	store := e.store()
	opts := []pipeline.Option{
		pipeline.WithCharts(report.NewRenderer(report.NewStoredSource(store), e.cfg.ChartDir, e.logger)),
		pipeline.WithRawSnapshots(e.cfg.SaveRaw),
	}

	if e.cfg.MapboxEnabled {
		client := mapbox.NewClient(e.cfg.MapboxToken, e.cfg.MapboxTimeout, e.logger, metrics)
		opts = append(opts, pipeline.WithGeocoder(
			mapbox.NewCachedGeocoder(client, e.cfg.MapboxCacheSize, e.cfg.MapboxCacheTTL, clockwork.NewRealClock(), metrics),
		))
		metrics.GeocodeEnabled.Set(1)
		e.logger.Info("mapbox geocoding enabled", "cache_size", e.cfg.MapboxCacheSize, "timeout", e.cfg.MapboxTimeout)
	}

	if e.cfg.KafkaEnabled() {
		publisher := kafkaadapter.NewPublisher(e.cfg, e.logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				e.logger.Error("kafka publisher close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithPublisher(publisher))
		e.logger.Info("kafka publishing enabled", "brokers", e.cfg.KafkaBrokers, "topic", e.cfg.KafkaTopic)
	}

	p := pipeline.New(eonet.NewClient(e.cfg, e.logger, metrics), store, e.logger, metrics, opts...)

	rep, err := p.Run(ctx, q)
	if errors.Is(err, domain.ErrNoEvents) {
		e.logger.Warn("nothing to save", "range", q.Range.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", q.Range, err)
	}
	for _, path := range rep.Charts {
		e.logger.Debug("chart written", "path", path)
	}
	return nil
}

func (e *env) pushMetrics(g prometheus.Gatherer) {
	if e.cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()
	if err := observability.Push(ctx, e.cfg.PushgatewayURL, g); err != nil {
		e.logger.Error("metrics push failed", "url", e.cfg.PushgatewayURL, "error", err)
	}
}
