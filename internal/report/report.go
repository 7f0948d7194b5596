// Package report turns persisted or live rows into chart datasets and
// rendered chart files.
package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/eonet-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/eonet-etl/internal/chart"
	"github.com/couchcryptid/eonet-etl/internal/domain"
)

// RowSource yields rows for a year; year 0 means every year.
type RowSource interface {
	Rows(ctx context.Context, year int) ([]domain.Row, error)
}

// Analyze loads rows into a fresh in-memory analytics database. The caller
// closes it.
func Analyze(ctx context.Context, rows []domain.Row) (*sqlite.DB, error) {
	db, err := sqlite.Open(ctx, sqlite.MemoryDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Load(ctx, rows); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Build computes the chart dataset for a year from rows.
func Build(ctx context.Context, rows []domain.Row, year int) (chart.Dataset, error) {
	db, err := Analyze(ctx, rows)
	if err != nil {
		return chart.Dataset{}, err
	}
	defer db.Close()
	return Collect(ctx, db, year)
}

// Collect gathers the chart dataset for a year from a loaded database.
func Collect(ctx context.Context, db *sqlite.DB, year int) (chart.Dataset, error) {
	ds := chart.Dataset{Year: year}
	var err error

	if ds.Daily, err = db.DailyCounts(ctx, year); err != nil {
		return ds, err
	}
	if ds.Categories, err = db.CategoryCounts(ctx, year); err != nil {
		return ds, err
	}
	if ds.Latest, ds.HasLatest, err = db.LatestDay(ctx, year); err != nil {
		return ds, err
	}
	if ds.Points, err = db.Points(ctx, year); err != nil {
		return ds, err
	}
	return ds, nil
}

// Renderer writes chart files for rows drawn from a source.
type Renderer struct {
	source RowSource
	dir    string
	logger *slog.Logger
}

// NewRenderer creates a Renderer writing into dir.
func NewRenderer(source RowSource, dir string, logger *slog.Logger) *Renderer {
	return &Renderer{source: source, dir: dir, logger: logger}
}

// Render builds and writes every chart for a year and returns the written
// paths.
func (r *Renderer) Render(ctx context.Context, year int) ([]string, error) {
	rows, err := r.source.Rows(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("load rows: %w", err)
	}
	ds, err := Build(ctx, rows, year)
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}
	paths, err := chart.WriteAll(r.dir, ds)
	if err != nil {
		return paths, err
	}
	r.logger.Info("charts rendered", "year", ds.Label(), "dir", r.dir, "files", len(paths))
	return paths, nil
}
