package csvstore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStore_ReadMissingYear(t *testing.T) {
	s := testStore(t)

	rows, err := s.ReadYear(2024)
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestStore_WriteReadYear(t *testing.T) {
	s := testStore(t)
	rows := sampleRows()

	require.NoError(t, s.WriteYear(2024, rows))

	assert.FileExists(t, filepath.Join(s.ProcessedDir(), "events_2024.csv"))
	got, err := s.ReadYear(2024)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestStore_WriteYearReplaces(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.WriteYear(2024, sampleRows()))
	require.NoError(t, s.WriteYear(2024, sampleRows()[2:]))

	got, err := s.ReadYear(2024)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EONET_2", got[0].EventID)

	entries, err := os.ReadDir(s.ProcessedDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_YearsAndReadAll(t *testing.T) {
	s := testStore(t)
	rows := sampleRows()

	require.NoError(t, s.WriteYear(2024, rows[:2]))
	require.NoError(t, s.WriteYear(2022, rows[2:]))
	require.NoError(t, os.WriteFile(filepath.Join(s.ProcessedDir(), "notes.txt"), []byte("x"), 0o644))

	years, err := s.Years()
	require.NoError(t, err)
	assert.Equal(t, []int{2022, 2024}, years)

	all, err := s.ReadAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "EONET_2", all[0].EventID)
}

func TestStore_YearsEmptyDir(t *testing.T) {
	s := testStore(t)

	years, err := s.Years()
	require.NoError(t, err)
	assert.Empty(t, years)
}

func TestStore_SaveRaw(t *testing.T) {
	s := testStore(t)
	r := domain.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	raw := []byte(`{"events":[]}`)

	path, err := s.SaveRaw(r, raw)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(s.RawDir(), "events_2024-01-01_to_2024-01-02.json"), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestStore_ReadCorruptPartition(t *testing.T) {
	s := testStore(t)
	require.NoError(t, os.MkdirAll(s.ProcessedDir(), 0o755))
	require.NoError(t, os.WriteFile(s.Path(2024), []byte("wrong,header\n1,2\n"), 0o644))

	_, err := s.ReadYear(2024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partition 2024")
}
