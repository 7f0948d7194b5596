// Command validate checks the integrity of a data directory written by
// eonet-etl: every yearly partition parses, rows agree with their partition
// and with each other, and every raw snapshot is covered by the partitions.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/eonet-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type partition struct {
	year int
	rows []domain.Row
}

type occurrenceKey struct {
	eventID string
	date    time.Time
}

func main() {
	dataDir := flag.String("data-dir", "data", "eonet-etl data directory (holds processed/ and raw/)")
	flag.Parse()

	if code := run(*dataDir, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(dataDir string, w io.Writer) int {
	store := csvstore.New(dataDir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	fmt.Fprintln(w, "=== EONET Data Integrity Validation ===")
	fmt.Fprintln(w)

	years, err := store.Years()
	if err != nil {
		fmt.Fprintf(w, "FATAL: list partitions: %v\n", err)
		return 1
	}
	if len(years) == 0 {
		fmt.Fprintf(w, "FATAL: no partitions under %s\n", store.ProcessedDir())
		return 1
	}

	parse := &phase{name: "Partitions parse"}
	var parts []partition
	for _, y := range years {
		rows, err := store.ReadYear(y)
		if err != nil {
			parse.errorf("%d: %v", y, err)
			continue
		}
		parts = append(parts, partition{year: y, rows: rows})
	}

	snapshots, snapshotPhase := loadSnapshots(store.RawDir())

	phases := []*phase{
		parse,
		validateEvents(parts),
		validateYears(parts),
		validateUniqueness(parts),
		validateCoordinates(parts),
		snapshotPhase,
		validateSnapshotCoverage(snapshots, parts),
	}

	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Partitions: %d, rows: %d, raw snapshots: %d\n", len(parts), countRows(parts), len(snapshots))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func countRows(parts []partition) int {
	n := 0
	for _, p := range parts {
		n += len(p.rows)
	}
	return n
}

// ── Phase: event columns agree across an event's rows ──

func validateEvents(parts []partition) *phase {
	p := &phase{name: "Event metadata consistent"}
	for _, part := range parts {
		first := make(map[string]domain.Row)
		for i, r := range part.rows {
			if r.EventID == "" {
				p.errorf("%d row %d: empty event_id", part.year, i+1)
				continue
			}
			f, ok := first[r.EventID]
			if !ok {
				first[r.EventID] = r
				continue
			}
			if f.EventTitle != r.EventTitle || f.EventDescription != r.EventDescription || f.EventLink != r.EventLink ||
				domain.JoinList(f.CategoryIDs) != domain.JoinList(r.CategoryIDs) ||
				domain.JoinList(f.CategoryTitles) != domain.JoinList(r.CategoryTitles) {
				p.errorf("%d row %d: event %s columns differ from its earlier rows", part.year, i+1, r.EventID)
			}
		}
	}
	return p
}

// ── Phase: year and date fields ──

func validateYears(parts []partition) *phase {
	p := &phase{name: "Occurrence dates match partition"}
	for _, part := range parts {
		for i, r := range part.rows {
			if !r.HasOccurrence() {
				continue
			}
			d := r.OccurrenceDate.UTC()
			if r.Year != part.year {
				p.errorf("%d row %d (%s): year %d in wrong partition", part.year, i+1, r.EventID, r.Year)
			}
			if d.Year() != r.Year || int(d.Month()) != r.Month || d.Day() != r.Day {
				p.errorf("%d row %d (%s): date %s disagrees with year/month/day %d-%d-%d",
					part.year, i+1, r.EventID, d.Format(time.RFC3339), r.Year, r.Month, r.Day)
			}
		}
	}
	return p
}

// ── Phase: one row per (event, date) ──

func validateUniqueness(parts []partition) *phase {
	p := &phase{name: "Occurrences unique"}
	for _, part := range parts {
		seen := make(map[occurrenceKey]int, len(part.rows))
		for i, r := range part.rows {
			if !r.HasOccurrence() {
				continue
			}
			k := occurrenceKey{r.EventID, r.OccurrenceDate.UTC()}
			if first, ok := seen[k]; ok {
				p.errorf("%d rows %d and %d: duplicate occurrence %s at %s",
					part.year, first, i+1, r.EventID, k.date.Format(time.RFC3339))
				continue
			}
			seen[k] = i + 1
		}
	}
	return p
}

// ── Phase: coordinate ranges ──

func validateCoordinates(parts []partition) *phase {
	p := &phase{name: "Coordinates in range"}
	for _, part := range parts {
		for i, r := range part.rows {
			if !r.HasOccurrence() {
				continue
			}
			if r.Longitude < -180 || r.Longitude > 180 || r.Latitude < -90 || r.Latitude > 90 {
				p.errorf("%d row %d (%s): [%g, %g] out of range", part.year, i+1, r.EventID, r.Longitude, r.Latitude)
			}
		}
	}
	return p
}

// ── Phase: raw snapshots ──

type snapshot struct {
	name string
	doc  domain.EventsDocument
}

func loadSnapshots(dir string) ([]snapshot, *phase) {
	p := &phase{name: "Raw snapshots decode"}
	paths, err := filepath.Glob(filepath.Join(dir, "events_*.json"))
	if err != nil {
		p.errorf("list snapshots: %v", err)
		return nil, p
	}
	sort.Strings(paths)

	var out []snapshot
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", filepath.Base(path), err)
			continue
		}
		var doc domain.EventsDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			p.errorf("%s: %v", filepath.Base(path), err)
			continue
		}
		out = append(out, snapshot{name: filepath.Base(path), doc: doc})
	}
	return out, p
}

func validateSnapshotCoverage(snapshots []snapshot, parts []partition) *phase {
	p := &phase{name: "Raw snapshots covered by partitions"}

	stored := make(map[occurrenceKey]bool)
	events := make(map[string]bool)
	for _, part := range parts {
		for _, r := range part.rows {
			events[r.EventID] = true
			if r.HasOccurrence() {
				stored[occurrenceKey{r.EventID, r.OccurrenceDate.UTC()}] = true
			}
		}
	}

	for _, s := range snapshots {
		table, _ := domain.Normalize(s.doc, time.Time{})
		for _, e := range table.Events {
			if !events[e.ID] {
				p.errorf("%s: event %s missing from partitions", s.name, e.ID)
			}
		}
		for _, o := range table.Occurrences {
			if !stored[occurrenceKey{o.EventID, o.Date.UTC()}] {
				p.errorf("%s: occurrence %s at %s missing from partitions", s.name, o.EventID, o.Date.Format(time.RFC3339))
			}
		}
	}
	return p
}
