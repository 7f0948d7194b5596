// Package chart renders the dashboard charts as standalone HTML pages.
package chart

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// Output file names.
const (
	DailyFile      = "daily_event_count.html"
	BigNumberFile  = "total_events_big_number.html"
	CategoriesFile = "events_by_category.html"
	MapFile        = "geospatial_event_map.html"
)

const accent = "#10b981"

// Dataset is everything the charts need for one year (0 = all years).
type Dataset struct {
	Year       int
	Daily      []domain.DayCount
	Categories []domain.CategoryCount
	Latest     domain.DayCount
	HasLatest  bool
	Points     []domain.MapPoint
}

// Label is the human-readable scope of the dataset.
func (d Dataset) Label() string {
	if d.Year == 0 {
		return "All years"
	}
	return fmt.Sprintf("%d", d.Year)
}

// Daily renders the occurrence-count-per-day line chart.
func Daily(w io.Writer, d Dataset) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Daily event count", Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Daily event count", Subtitle: d.Label()}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Occurrences"}),
	)

	days := make([]string, len(d.Daily))
	data := make([]opts.LineData, len(d.Daily))
	for i, dc := range d.Daily {
		days[i] = dc.Date.Format(domain.DateLayout)
		data[i] = opts.LineData{Value: dc.Count}
	}
	line.SetXAxis(days).AddSeries("Occurrences", data,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: accent}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: accent}),
	)
	return line.Render(w)
}

// Categories renders the events-by-category donut chart.
func Categories(w io.Writer, d Dataset) error {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Events by category", Width: "700px", Height: "450px"}),
		charts.WithTitleOpts(opts.Title{Title: "Events by category", Subtitle: d.Label()}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "item"}),
	)

	data := make([]opts.PieData, len(d.Categories))
	for i, cc := range d.Categories {
		data[i] = opts.PieData{Name: cc.Category, Value: cc.Events}
	}
	pie.AddSeries("Events", data, charts.WithPieChartOpts(opts.PieChart{Radius: []string{"40%", "70%"}}))
	return pie.Render(w)
}

// Map renders occurrences as points on a world map, one series per
// category combination so each gets its own color.
func Map(w io.Writer, d Dataset) error {
	geo := charts.NewGeo()
	geo.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Event locations", Width: "1000px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Event locations", Subtitle: d.Label()}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "item"}),
		charts.WithGeoComponentOpts(opts.GeoComponent{Map: "world"}),
	)

	groups := make(map[string][]opts.GeoData)
	for _, p := range d.Points {
		key := p.Categories
		if key == "" {
			key = "Uncategorized"
		}
		groups[key] = append(groups[key], opts.GeoData{
			Name:  fmt.Sprintf("%s (%s)", p.Title, p.Date.Format(domain.DateLayout)),
			Value: []float64{p.Longitude, p.Latitude, 1},
		})
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		geo.AddSeries(name, types.ChartScatter, groups[name])
	}
	return geo.Render(w)
}

// WriteAll renders every chart into dir, creating it if needed, and returns
// the written paths.
func WriteAll(dir string, d Dataset) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}

	renderers := []struct {
		file   string
		render func(io.Writer, Dataset) error
	}{
		{DailyFile, Daily},
		{BigNumberFile, BigNumber},
		{CategoriesFile, Categories},
		{MapFile, Map},
	}

	paths := make([]string, 0, len(renderers))
	for _, r := range renderers {
		path := filepath.Join(dir, r.file)
		if err := writeFile(path, d, r.render); err != nil {
			return paths, fmt.Errorf("render %s: %w", r.file, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, d Dataset, render func(io.Writer, Dataset) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f, d); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func formatDay(t time.Time) string {
	return t.Format("January 2, 2006")
}
