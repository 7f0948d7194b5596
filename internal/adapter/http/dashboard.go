package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/couchcryptid/eonet-etl/internal/chart"
	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/report"
	"github.com/gin-gonic/gin"
)

// CacheInvalidator drops cached upstream responses.
type CacheInvalidator interface {
	Invalidate() int
}

// chartOrder is the page layout, top to bottom.
var chartOrder = []string{"latest", "daily", "categories", "map"}

var renderers = map[string]func(io.Writer, chart.Dataset) error{
	"latest":     chart.BigNumber,
	"daily":      chart.Daily,
	"categories": chart.Categories,
	"map":        chart.Map,
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>EONET Natural Events</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; margin: 2rem; color: #1f2937; }
iframe { border: 0; width: 100%; height: 540px; margin-bottom: 1rem; }
</style>
</head>
<body>
<h1>EONET Natural Events</h1>
<form method="get" action="/">
<label>Year
<select name="year" onchange="this.form.submit()">
<option value="all"{{if eq .Year 0}} selected{{end}}>All years</option>
{{- range .Years}}
<option value="{{.}}"{{if eq . $.Year}} selected{{end}}>{{.}}</option>
{{- end}}
</select>
</label>
</form>
{{range .Charts}}<iframe src="/charts/{{.}}?year={{$.Param}}"></iframe>
{{end}}</body>
</html>
`))

// Dashboard renders charts and statistics from a row source, normally live
// API data behind the events cache.
type Dashboard struct {
	source report.RowSource
	cache  CacheInvalidator
	logger *slog.Logger
	ready  atomic.Bool
}

// NewDashboard creates a Dashboard. cache may be nil.
func NewDashboard(source report.RowSource, cache CacheInvalidator, logger *slog.Logger) *Dashboard {
	return &Dashboard{source: source, cache: cache, logger: logger}
}

// Register mounts the dashboard routes.
func (d *Dashboard) Register(r gin.IRouter) {
	r.GET("/", d.handleIndex)
	r.GET("/charts/:name", d.handleChart)

	api := r.Group("/api")
	{
		api.GET("/years", d.handleYears)
		api.GET("/stats/daily", d.handleDaily)
		api.GET("/stats/categories", d.handleCategories)
		api.GET("/stats/latest", d.handleLatest)
		api.GET("/events", d.handleEvents)
		api.POST("/cache/invalidate", d.handleInvalidate)
	}
}

// Warm loads every year once so the first page view is served from cache.
func (d *Dashboard) Warm(ctx context.Context) error {
	if _, err := d.source.Rows(ctx, 0); err != nil {
		return err
	}
	d.ready.Store(true)
	return nil
}

// Refresh drops cached responses and warms the cache again.
func (d *Dashboard) Refresh(ctx context.Context) {
	dropped := 0
	if d.cache != nil {
		dropped = d.cache.Invalidate()
	}
	if err := d.Warm(ctx); err != nil {
		d.logger.Error("dashboard refresh failed", "error", err)
		return
	}
	d.logger.Info("dashboard refreshed", "dropped_entries", dropped)
}

// CheckReadiness reports ready once data has been loaded successfully.
func (d *Dashboard) CheckReadiness(_ context.Context) error {
	if !d.ready.Load() {
		return errors.New("dashboard data has not been loaded yet")
	}
	return nil
}

func (d *Dashboard) handleIndex(c *gin.Context) {
	year, ok := d.year(c)
	if !ok {
		return
	}
	years, err := d.years(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}

	param := "all"
	if year != 0 {
		param = strconv.Itoa(year)
	}

	var buf bytes.Buffer
	err = indexTemplate.Execute(&buf, struct {
		Year   int
		Param  string
		Years  []int
		Charts []string
	}{year, param, years, chartOrder})
	if err != nil {
		d.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (d *Dashboard) handleChart(c *gin.Context) {
	render, ok := renderers[c.Param("name")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown chart %q", c.Param("name"))})
		return
	}
	ds, ok := d.dataset(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := render(&buf, ds); err != nil {
		d.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (d *Dashboard) handleYears(c *gin.Context) {
	years, err := d.years(c.Request.Context())
	if err != nil {
		d.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"years": years})
}

func (d *Dashboard) handleDaily(c *gin.Context) {
	if ds, ok := d.dataset(c); ok {
		c.JSON(http.StatusOK, gin.H{"year": ds.Year, "daily": nonNil(ds.Daily)})
	}
}

func (d *Dashboard) handleCategories(c *gin.Context) {
	if ds, ok := d.dataset(c); ok {
		c.JSON(http.StatusOK, gin.H{"year": ds.Year, "categories": nonNil(ds.Categories)})
	}
}

func (d *Dashboard) handleLatest(c *gin.Context) {
	ds, ok := d.dataset(c)
	if !ok {
		return
	}
	if !ds.HasLatest {
		c.JSON(http.StatusOK, gin.H{"year": ds.Year, "latest": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": ds.Year, "latest": ds.Latest})
}

func (d *Dashboard) handleEvents(c *gin.Context) {
	if ds, ok := d.dataset(c); ok {
		c.JSON(http.StatusOK, gin.H{"year": ds.Year, "events": nonNil(ds.Points)})
	}
}

func (d *Dashboard) handleInvalidate(c *gin.Context) {
	dropped := 0
	if d.cache != nil {
		dropped = d.cache.Invalidate()
	}
	d.logger.Info("dashboard cache invalidated", "dropped_entries", dropped)
	c.JSON(http.StatusOK, gin.H{"invalidated": dropped})
}

// dataset loads the chart dataset for the request's year, writing an error
// response and returning false on failure.
func (d *Dashboard) dataset(c *gin.Context) (chart.Dataset, bool) {
	year, ok := d.year(c)
	if !ok {
		return chart.Dataset{}, false
	}
	ctx := c.Request.Context()

	rows, err := d.source.Rows(ctx, year)
	if err != nil {
		d.fail(c, errSource{err})
		return chart.Dataset{}, false
	}
	d.ready.Store(true)

	ds, err := report.Build(ctx, rows, year)
	if err != nil {
		d.fail(c, err)
		return chart.Dataset{}, false
	}
	return ds, true
}

func (d *Dashboard) years(ctx context.Context) ([]int, error) {
	rows, err := d.source.Rows(ctx, 0)
	if err != nil {
		return nil, errSource{err}
	}
	d.ready.Store(true)

	db, err := report.Analyze(ctx, rows)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	years, err := db.Years(ctx)
	return nonNil(years), err
}

func (d *Dashboard) year(c *gin.Context) (int, bool) {
	year, err := domain.ParseYear(c.Query("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return year, true
}

// errSource marks failures loading rows from the upstream source.
type errSource struct{ err error }

func (e errSource) Error() string { return e.err.Error() }
func (e errSource) Unwrap() error { return e.err }

func (d *Dashboard) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var src errSource
	if errors.As(err, &src) {
		status = http.StatusBadGateway
	}
	d.logger.Error("dashboard request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
