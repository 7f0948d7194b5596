package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/eonet-etl/internal/adapter/http"
	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type stubSource struct {
	mu    sync.Mutex
	rows  []domain.Row
	err   error
	calls int
}

func (s *stubSource) Rows(_ context.Context, year int) ([]domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if year == 0 {
		return s.rows, nil
	}
	var out []domain.Row
	for _, r := range s.rows {
		if r.Year == year {
			out = append(out, r)
		}
	}
	return out, nil
}

type countingCache struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCache) Invalidate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 3
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func occurrenceRow(id, title, category string, date time.Time) domain.Row {
	return domain.Row{
		EventID:        id,
		EventTitle:     title,
		CategoryIDs:    []string{strings.ToLower(category)},
		CategoryTitles: []string{category},
		OccurrenceDate: date,
		OccurrenceType: domain.GeometryPoint,
		Longitude:      10,
		Latitude:       20,
		Year:           date.Year(),
		Month:          int(date.Month()),
		Day:            date.Day(),
	}
}

func testRows() []domain.Row {
	return []domain.Row{
		occurrenceRow("EONET_1", "Wildfire A", "Wildfires", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		occurrenceRow("EONET_1", "Wildfire A", "Wildfires", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		occurrenceRow("EONET_3", "Storm C", "Severe Storms", time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)),
		occurrenceRow("EONET_4", "Volcano D", "Volcanoes", time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC)),
	}
}

func newTestServer(source *stubSource, cache *countingCache) (*httpadapter.Server, *httpadapter.Dashboard) {
	var inv httpadapter.CacheInvalidator
	if cache != nil {
		inv = cache
	}
	d := httpadapter.NewDashboard(source, inv, discardLogger())
	return httpadapter.NewServer(":0", d, d, discardLogger()), d
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func get(srv http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- tests ---

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(&stubSource{}, nil)

	rec := get(srv, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestReadyzBeforeAndAfterWarm(t *testing.T) {
	srv, d := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", decodeBody(t, rec)["status"])

	require.NoError(t, d.Warm(context.Background()))

	rec = get(srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestWarmFailureStaysNotReady(t *testing.T) {
	_, d := newTestServer(&stubSource{err: errors.New("upstream down")}, nil)

	require.Error(t, d.Warm(context.Background()))
	assert.Error(t, d.CheckReadiness(context.Background()))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&stubSource{}, nil)

	rec := get(srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestIndexListsYearsAndCharts(t *testing.T) {
	freezeClock(t)
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/?year=2024")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, `<option value="2023">2023</option>`)
	assert.Contains(t, body, `<option value="2024" selected>2024</option>`)
	for _, name := range []string{"latest", "daily", "categories", "map"} {
		assert.Contains(t, body, "/charts/"+name+"?year=2024")
	}
}

func TestChartRoutes(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	for _, name := range []string{"daily", "categories", "map", "latest"} {
		t.Run(name, func(t *testing.T) {
			rec := get(srv, "/charts/"+name+"?year=2024")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			assert.Contains(t, rec.Body.String(), "<html")
		})
	}
}

func TestChartUnknownName(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/charts/pie?year=2024")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidYear(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	for _, year := range []string{"abc", "-1", "10000"} {
		rec := get(srv, "/api/stats/daily?year="+year)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "year %s", year)
	}
}

func TestYearsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/api/years")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{2023.0, 2024.0}, decodeBody(t, rec)["years"])
}

func TestDailyStats(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/api/stats/daily?year=2024")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 2024.0, body["year"])
	daily := body["daily"].([]any)
	require.Len(t, daily, 2)
	assert.Equal(t, 1.0, daily[0].(map[string]any)["count"])
	assert.Equal(t, 2.0, daily[1].(map[string]any)["count"])
}

func TestCategoryStatsAllYears(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/api/stats/categories?year=all")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 0.0, body["year"])
	assert.Len(t, body["categories"], 3)
}

func TestLatestStats(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/api/stats/latest?year=2024")

	require.Equal(t, http.StatusOK, rec.Code)
	latest := decodeBody(t, rec)["latest"].(map[string]any)
	assert.Equal(t, 2.0, latest["count"])
}

func TestLatestStatsEmptyYear(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/api/stats/latest?year=2020")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody(t, rec)["latest"])
}

func TestEventsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/api/events?year=2023")

	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody(t, rec)["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "EONET_4", events[0].(map[string]any)["event_id"])
}

func TestDefaultYearIsCurrentYear(t *testing.T) {
	freezeClock(t)
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := get(srv, "/api/stats/daily")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2024.0, decodeBody(t, rec)["year"])
}

func TestSourceErrorReturns502(t *testing.T) {
	srv, _ := newTestServer(&stubSource{err: errors.New("fetch live events: boom")}, nil)

	rec := get(srv, "/api/stats/daily?year=2024")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "boom")
}

func TestCacheInvalidate(t *testing.T) {
	cache := &countingCache{}
	srv, _ := newTestServer(&stubSource{rows: testRows()}, cache)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/invalidate", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, decodeBody(t, rec)["invalidated"])
	assert.Equal(t, 1, cache.calls)
}

func TestCacheInvalidateWithoutCache(t *testing.T) {
	srv, _ := newTestServer(&stubSource{rows: testRows()}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cache/invalidate", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decodeBody(t, rec)["invalidated"])
}

func TestRefreshInvalidatesAndWarms(t *testing.T) {
	source := &stubSource{rows: testRows()}
	cache := &countingCache{}
	_, d := newTestServer(source, cache)

	d.Refresh(context.Background())

	assert.Equal(t, 1, cache.calls)
	assert.Equal(t, 1, source.calls)
	assert.NoError(t, d.CheckReadiness(context.Background()))
}

func TestStartRefresher(t *testing.T) {
	_, d := newTestServer(&stubSource{rows: testRows()}, nil)

	c, err := d.StartRefresher(context.Background(), "*/5 * * * *")
	require.NoError(t, err)
	defer c.Stop()
	assert.Len(t, c.Entries(), 1)

	_, err = d.StartRefresher(context.Background(), "not a schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DASHBOARD_REFRESH_CRON")
}
