package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/domain"
)

// Header is the persisted column order.
var Header = []string{
	"event_id",
	"event_title",
	"event_description",
	"event_link",
	"category_ids",
	"category_titles",
	"occurrence_date",
	"occurrence_type",
	"longitude",
	"latitude",
	"year",
	"month",
	"day",
}

// WriteRows encodes rows as CSV with a header line. Placeholder rows for
// events without occurrences leave every occurrence column empty.
func WriteRows(w io.Writer, rows []domain.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(encodeRow(r)); err != nil {
			return fmt.Errorf("write row %s: %w", r.EventID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeRow(r domain.Row) []string {
	rec := []string{
		r.EventID,
		r.EventTitle,
		r.EventDescription,
		r.EventLink,
		domain.JoinList(r.CategoryIDs),
		domain.JoinList(r.CategoryTitles),
		"", "", "", "", "", "", "",
	}
	if r.HasOccurrence() {
		rec[6] = r.OccurrenceDate.UTC().Format(time.RFC3339Nano)
		rec[7] = string(r.OccurrenceType)
		rec[8] = strconv.FormatFloat(r.Longitude, 'f', -1, 64)
		rec[9] = strconv.FormatFloat(r.Latitude, 'f', -1, 64)
		rec[10] = strconv.Itoa(r.Year)
		rec[11] = strconv.Itoa(r.Month)
		rec[12] = strconv.Itoa(r.Day)
	}
	return rec
}

// ReadRows decodes CSV written by WriteRows. Columns are matched by header
// name, so extra columns are ignored and order may vary.
func ReadRows(r io.Reader) ([]domain.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []domain.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		row, err := decodeRow(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type columns map[string]int

func columnIndex(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, name := range header {
		cols[name] = i
	}
	var missing []error
	for _, name := range Header {
		if _, ok := cols[name]; !ok {
			missing = append(missing, fmt.Errorf("missing column %q", name))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}
	return cols, nil
}

func (c columns) get(rec []string, name string) string {
	i := c[name]
	if i >= len(rec) {
		return ""
	}
	return rec[i]
}

func decodeRow(rec []string, cols columns) (domain.Row, error) {
	row := domain.Row{
		EventID:          cols.get(rec, "event_id"),
		EventTitle:       cols.get(rec, "event_title"),
		EventDescription: cols.get(rec, "event_description"),
		EventLink:        cols.get(rec, "event_link"),
		CategoryIDs:      domain.SplitList(cols.get(rec, "category_ids")),
		CategoryTitles:   domain.SplitList(cols.get(rec, "category_titles")),
	}
	if row.EventID == "" {
		return row, errors.New("empty event_id")
	}

	date := cols.get(rec, "occurrence_date")
	if date == "" {
		return row, nil
	}

	var err error
	if row.OccurrenceDate, err = time.Parse(time.RFC3339Nano, date); err != nil {
		return row, fmt.Errorf("occurrence_date: %w", err)
	}
	row.OccurrenceType = domain.GeometryType(cols.get(rec, "occurrence_type"))
	if row.Longitude, err = strconv.ParseFloat(cols.get(rec, "longitude"), 64); err != nil {
		return row, fmt.Errorf("longitude: %w", err)
	}
	if row.Latitude, err = strconv.ParseFloat(cols.get(rec, "latitude"), 64); err != nil {
		return row, fmt.Errorf("latitude: %w", err)
	}
	if row.Year, err = strconv.Atoi(cols.get(rec, "year")); err != nil {
		return row, fmt.Errorf("year: %w", err)
	}
	if row.Month, err = strconv.Atoi(cols.get(rec, "month")); err != nil {
		return row, fmt.Errorf("month: %w", err)
	}
	if row.Day, err = strconv.Atoi(cols.get(rec, "day")); err != nil {
		return row, fmt.Errorf("day: %w", err)
	}
	return row, nil
}
