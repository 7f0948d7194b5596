package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func occurrenceRow(id, title string, cats []string, at time.Time, lon, lat float64) domain.Row {
	return domain.Row{
		EventID:        id,
		EventTitle:     title,
		CategoryIDs:    cats,
		CategoryTitles: cats,
		OccurrenceDate: at,
		OccurrenceType: domain.GeometryPoint,
		Longitude:      lon,
		Latitude:       lat,
		Year:           at.Year(),
		Month:          int(at.Month()),
		Day:            at.Day(),
	}
}

func testRows() []domain.Row {
	return []domain.Row{
		occurrenceRow("EONET_1", "Wildfire A", []string{"Wildfires"}, date(2024, 1, 1), 10, 20),
		occurrenceRow("EONET_1", "Wildfire A", []string{"Wildfires"}, date(2024, 1, 2), 11, 21),
		occurrenceRow("EONET_2", "Storm B", []string{"Severe Storms", "Floods"}, date(2024, 1, 2), -80, 25),
		occurrenceRow("EONET_3", "Volcano C", []string{"Volcanoes"}, date(2023, 6, 30), 15, 37.7),
		{EventID: "EONET_4", EventTitle: "Iceberg D", CategoryIDs: []string{"Sea and Lake Ice"}, CategoryTitles: []string{"Sea and Lake Ice"}},
	}
}

func openLoaded(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Load(ctx, testRows()))
	return db
}

func TestDailyCounts(t *testing.T) {
	db := openLoaded(t)

	all, err := db.DailyCounts(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.DayCount{
		{Date: date(2023, 6, 30), Count: 1},
		{Date: date(2024, 1, 1), Count: 1},
		{Date: date(2024, 1, 2), Count: 2},
	}, all)

	only2023, err := db.DailyCounts(context.Background(), 2023)
	require.NoError(t, err)
	assert.Len(t, only2023, 1)
}

func TestLatestDay(t *testing.T) {
	db := openLoaded(t)

	dc, ok, err := db.LatestDay(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, date(2024, 1, 2), dc.Date)
	assert.Equal(t, 2, dc.Count)

	_, ok, err = db.LatestDay(context.Background(), 1999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCategoryCounts(t *testing.T) {
	db := openLoaded(t)

	all, err := db.CategoryCounts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for _, cc := range all {
		assert.Equal(t, 1, cc.Events, cc.Category)
	}

	y2024, err := db.CategoryCounts(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, []domain.CategoryCount{
		{Category: "Floods", Events: 1},
		{Category: "Severe Storms", Events: 1},
		{Category: "Wildfires", Events: 1},
	}, y2024)
}

func TestTotalEventsAndYears(t *testing.T) {
	db := openLoaded(t)
	ctx := context.Background()

	n, err := db.TotalEvents(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = db.TotalEvents(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	years, err := db.Years(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2023, 2024}, years)
}

func TestPoints(t *testing.T) {
	db := openLoaded(t)

	points, err := db.Points(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, "EONET_1", points[0].EventID)
	assert.Equal(t, date(2024, 1, 1), points[0].Date)
	assert.Equal(t, "EONET_2", points[2].EventID)
	assert.Equal(t, "Severe Storms, Floods", points[2].Categories)
	assert.Equal(t, -80.0, points[2].Longitude)
}

func TestLoad_ReplacesContents(t *testing.T) {
	db := openLoaded(t)
	ctx := context.Background()

	require.NoError(t, db.Load(ctx, testRows()[:1]))

	n, err := db.TotalEvents(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQuery(t *testing.T) {
	db := openLoaded(t)

	res, err := db.Query(context.Background(), `SELECT event_id, COUNT(*) AS n FROM occurrences GROUP BY event_id ORDER BY event_id;`)
	require.NoError(t, err)

	assert.Equal(t, []string{"event_id", "n"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "EONET_1", res.Rows[0][0])
	assert.EqualValues(t, 2, res.Rows[0][1])
}

func TestQuery_RejectsWrites(t *testing.T) {
	db := openLoaded(t)
	ctx := context.Background()

	for _, stmt := range []string{
		"DELETE FROM events",
		"SELECT 1; DROP TABLE events",
		"  update events set title = 'x'",
		"",
	} {
		_, err := db.Query(ctx, stmt)
		assert.ErrorIs(t, err, ErrNotReadOnly, stmt)
	}

	n, err := db.TotalEvents(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestQuery_WritingCTERolledBack(t *testing.T) {
	db := openLoaded(t)
	ctx := context.Background()

	_, _ = db.Query(ctx, "WITH doomed AS (SELECT event_id FROM events) DELETE FROM events WHERE event_id IN doomed")

	n, err := db.TotalEvents(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
