package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock geocoder ---

type mockGeocoder struct {
	result GeocodingResult
	err    error
	calls  int
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestEnrichWithGeocoding_NilGeocoder(t *testing.T) {
	table := sampleTable()

	result := EnrichWithGeocoding(context.Background(), table, nil, discardLogger())

	assert.Equal(t, table, result)
}

func TestEnrichWithGeocoding_SetsPlaceName(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{FormattedAddress: "Kern County, California, United States", PlaceName: "Kern County"}}
	table := sampleTable()

	result := EnrichWithGeocoding(context.Background(), table, geo, discardLogger())

	require.Len(t, result.Occurrences, 2)
	for _, o := range result.Occurrences {
		assert.Equal(t, "Kern County, California, United States", o.PlaceName)
	}
	assert.Equal(t, 2, geo.calls)
	// The input table is left untouched.
	assert.Empty(t, table.Occurrences[0].PlaceName)
}

func TestEnrichWithGeocoding_FallsBackToPlaceName(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{PlaceName: "Pacific Ocean"}}

	result := EnrichWithGeocoding(context.Background(), sampleTable(), geo, discardLogger())

	assert.Equal(t, "Pacific Ocean", result.Occurrences[0].PlaceName)
}

func TestEnrichWithGeocoding_FailureLeavesEmpty(t *testing.T) {
	geo := &mockGeocoder{err: errors.New("rate limited")}

	result := EnrichWithGeocoding(context.Background(), sampleTable(), geo, discardLogger())

	for _, o := range result.Occurrences {
		assert.Empty(t, o.PlaceName)
	}
	assert.Equal(t, 2, geo.calls)
}

func TestEnrichWithGeocoding_SkipsNullIsland(t *testing.T) {
	geo := &mockGeocoder{result: GeocodingResult{FormattedAddress: "somewhere"}}
	table := Table{
		Events:      []Event{{ID: "A"}},
		Occurrences: []Occurrence{{EventID: "A"}},
	}

	result := EnrichWithGeocoding(context.Background(), table, geo, discardLogger())

	assert.Empty(t, result.Occurrences[0].PlaceName)
	assert.Zero(t, geo.calls)
}
