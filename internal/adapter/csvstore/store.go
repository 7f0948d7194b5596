// Package csvstore persists normalized rows as year-partitioned CSV files
// and keeps raw API snapshots alongside them.
//
// Layout under the data directory:
//
//	processed/events_<year>.csv
//	raw/events_<start>_to_<end>.json
package csvstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/couchcryptid/eonet-etl/internal/domain"
)

var yearFile = regexp.MustCompile(`^events_(\d{4})\.csv$`)

// Store reads and writes CSV partitions under a data directory.
type Store struct {
	dataDir string
	logger  *slog.Logger
}

// New creates a Store rooted at dataDir. Directories are created on first write.
func New(dataDir string, logger *slog.Logger) *Store {
	return &Store{dataDir: dataDir, logger: logger}
}

// ProcessedDir is the directory holding the year partitions.
func (s *Store) ProcessedDir() string {
	return filepath.Join(s.dataDir, "processed")
}

// RawDir is the directory holding raw API snapshots.
func (s *Store) RawDir() string {
	return filepath.Join(s.dataDir, "raw")
}

// Path returns the partition file for a year.
func (s *Store) Path(year int) string {
	return filepath.Join(s.ProcessedDir(), fmt.Sprintf("events_%d.csv", year))
}

// ReadYear loads a year partition. A missing file yields no rows and no error.
func (s *Store) ReadYear(year int) ([]domain.Row, error) {
	f, err := os.Open(s.Path(year))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open partition %d: %w", year, err)
	}
	defer f.Close()

	rows, err := ReadRows(f)
	if err != nil {
		return nil, fmt.Errorf("read partition %d: %w", year, err)
	}
	return rows, nil
}

// WriteYear replaces a year partition atomically: rows go to a temp file in
// the same directory which is then renamed over the target.
func (s *Store) WriteYear(year int, rows []domain.Row) error {
	path := s.Path(year)
	if err := writeAtomic(path, func(f *os.File) error {
		return WriteRows(f, rows)
	}); err != nil {
		return fmt.Errorf("write partition %d: %w", year, err)
	}
	s.logger.Info("partition written", "year", year, "rows", len(rows), "path", path)
	return nil
}

// Years lists the years that have a partition, ascending.
func (s *Store) Years() ([]int, error) {
	entries, err := os.ReadDir(s.ProcessedDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	var years []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := yearFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// ReadAll loads every partition in year order.
func (s *Store) ReadAll() ([]domain.Row, error) {
	years, err := s.Years()
	if err != nil {
		return nil, err
	}
	var all []domain.Row
	for _, y := range years {
		rows, err := s.ReadYear(y)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	return all, nil
}

// SaveRaw writes the raw API response for a date range and returns its path.
// An existing snapshot for the same range is replaced.
func (s *Store) SaveRaw(r domain.DateRange, raw []byte) (string, error) {
	name := fmt.Sprintf("events_%s_to_%s.json", r.StartString(), r.EndString())
	path := filepath.Join(s.RawDir(), name)
	if err := writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(raw)
		return err
	}); err != nil {
		return "", fmt.Errorf("save raw snapshot: %w", err)
	}
	s.logger.Info("raw snapshot saved", "path", path, "bytes", len(raw))
	return path, nil
}

func writeAtomic(path string, write func(*os.File) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
