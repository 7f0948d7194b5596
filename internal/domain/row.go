package domain

import (
	"sort"
	"strings"
	"time"
)

// ListSeparator joins list values in a single CSV column.
const ListSeparator = "|"

// Row is the persisted, joined form of an event and one of its occurrences.
// A row with a zero OccurrenceDate stands for an event with no occurrences.
type Row struct {
	EventID          string
	EventTitle       string
	EventDescription string
	EventLink        string
	CategoryIDs      []string
	CategoryTitles   []string
	OccurrenceDate   time.Time
	OccurrenceType   GeometryType
	Longitude        float64
	Latitude         float64
	Year             int
	Month            int
	Day              int
}

// HasOccurrence reports whether the row carries an occurrence.
func (r Row) HasOccurrence() bool {
	return !r.OccurrenceDate.IsZero()
}

// Flatten joins each occurrence with its event. Events without occurrences
// yield one placeholder row. Rows follow the table's event order and, within
// an event, ascending occurrence date. Occurrences with no event are dropped.
func Flatten(t Table) []Row {
	byEvent := make(map[string][]Occurrence, len(t.Events))
	for _, o := range t.Occurrences {
		byEvent[o.EventID] = append(byEvent[o.EventID], o)
	}

	rows := make([]Row, 0, len(t.Occurrences)+len(t.Events))
	for _, e := range t.Events {
		base := Row{
			EventID:          e.ID,
			EventTitle:       e.Title,
			EventDescription: e.Description,
			EventLink:        e.Link,
			CategoryIDs:      e.CategoryIDs(),
			CategoryTitles:   e.CategoryTitles(),
		}

		occurrences := byEvent[e.ID]
		if len(occurrences) == 0 {
			rows = append(rows, base)
			continue
		}
		sort.SliceStable(occurrences, func(i, j int) bool {
			return occurrences[i].Date.Before(occurrences[j].Date)
		})
		for _, o := range occurrences {
			r := base
			r.OccurrenceDate = o.Date
			r.OccurrenceType = o.Type
			r.Longitude = o.Longitude
			r.Latitude = o.Latitude
			r.Year = o.Year
			r.Month = o.Month
			r.Day = o.Day
			rows = append(rows, r)
		}
	}
	return rows
}

// Unflatten rebuilds a table from persisted rows, stamping every record with
// fetchedAt. Event metadata comes from the last row seen for each event ID.
// Coordinates are restored as the single reduced position.
func Unflatten(rows []Row, fetchedAt time.Time) Table {
	var (
		t     Table
		index = make(map[string]int, len(rows))
	)

	for _, r := range rows {
		event := Event{
			ID:          r.EventID,
			Title:       r.EventTitle,
			Description: r.EventDescription,
			Link:        r.EventLink,
			Categories:  zipCategories(r.CategoryIDs, r.CategoryTitles),
			FetchedAt:   fetchedAt,
		}
		if i, ok := index[r.EventID]; ok {
			t.Events[i] = event
		} else {
			index[r.EventID] = len(t.Events)
			t.Events = append(t.Events, event)
		}

		if !r.HasOccurrence() {
			continue
		}
		t.Occurrences = append(t.Occurrences, Occurrence{
			EventID:     r.EventID,
			Date:        r.OccurrenceDate,
			Type:        r.OccurrenceType,
			Coordinates: []Position{{r.Longitude, r.Latitude}},
			Longitude:   r.Longitude,
			Latitude:    r.Latitude,
			Year:        r.Year,
			Month:       r.Month,
			Day:         r.Day,
			FetchedAt:   fetchedAt,
		})
	}
	return t
}

func zipCategories(ids, titles []string) []Category {
	n := max(len(ids), len(titles))
	if n == 0 {
		return nil
	}
	out := make([]Category, n)
	for i := range n {
		if i < len(ids) {
			out[i].ID = ids[i]
		}
		if i < len(titles) {
			out[i].Title = titles[i]
		}
	}
	return out
}

// PartitionByYear splits a table by occurrence year. Each partition carries
// the events its occurrences reference. Events with no occurrences at all go
// to fallbackYear.
func PartitionByYear(t Table, fallbackYear int) map[int]Table {
	events := make(map[string]Event, len(t.Events))
	for _, e := range t.Events {
		events[e.ID] = e
	}

	parts := make(map[int]Table)
	seen := make(map[int]map[string]bool)
	hasOccurrence := make(map[string]bool, len(t.Events))

	for _, o := range t.Occurrences {
		e, ok := events[o.EventID]
		if !ok {
			continue
		}
		hasOccurrence[o.EventID] = true

		p := parts[o.Year]
		if seen[o.Year] == nil {
			seen[o.Year] = make(map[string]bool)
		}
		if !seen[o.Year][e.ID] {
			seen[o.Year][e.ID] = true
			p.Events = append(p.Events, e)
		}
		p.Occurrences = append(p.Occurrences, o)
		parts[o.Year] = p
	}

	for _, e := range t.Events {
		if hasOccurrence[e.ID] {
			continue
		}
		p := parts[fallbackYear]
		if seen[fallbackYear] == nil {
			seen[fallbackYear] = make(map[string]bool)
		}
		if !seen[fallbackYear][e.ID] {
			seen[fallbackYear][e.ID] = true
			p.Events = append(p.Events, e)
		}
		parts[fallbackYear] = p
	}
	return parts
}

// MergePartitions merges a fetched table into stored year partitions and
// returns every partition that must be rewritten, keyed by year. Fetched
// event metadata replaces the stored copy in every partition holding the
// event. A placeholder survives only while its event has no occurrence in
// any partition, and then only in fallbackYear.
func MergePartitions(history map[int]Table, incoming Table, fallbackYear int) map[int]Table {
	fetched := make(map[string]Event, len(incoming.Events))
	for _, e := range incoming.Events {
		fetched[e.ID] = e
	}

	touched := make(map[int]Table)
	for year, part := range PartitionByYear(incoming, fallbackYear) {
		touched[year] = Merge(history[year], part)
	}
	for year, t := range history {
		if _, ok := touched[year]; ok {
			continue
		}
		for _, e := range t.Events {
			if _, ok := fetched[e.ID]; ok {
				touched[year] = t
				break
			}
		}
	}

	hasOccurrence := make(map[string]bool)
	for _, t := range touched {
		for _, o := range t.Occurrences {
			hasOccurrence[o.EventID] = true
		}
	}

	for year, t := range touched {
		inYear := make(map[string]bool, len(t.Events))
		for _, o := range t.Occurrences {
			inYear[o.EventID] = true
		}

		events := make([]Event, 0, len(t.Events))
		for _, e := range t.Events {
			f, ok := fetched[e.ID]
			if !ok {
				events = append(events, e)
				continue
			}
			if !inYear[e.ID] && (hasOccurrence[e.ID] || year != fallbackYear) {
				continue
			}
			events = append(events, f)
		}
		t.Events = events

		if _, stored := history[year]; !stored && len(t.Events) == 0 {
			delete(touched, year)
			continue
		}
		touched[year] = t
	}
	return touched
}

// JoinList encodes a list as one string, escaping the separator and the
// escape character with a backslash. The empty list and the list holding a
// single empty string both encode to "", which decodes to the empty list.
func JoinList(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		escaped[i] = strings.ReplaceAll(v, ListSeparator, `\`+ListSeparator)
	}
	return strings.Join(escaped, ListSeparator)
}

// SplitList decodes a string produced by JoinList.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	var (
		out []string
		cur strings.Builder
	)
	escaping := false
	for _, r := range s {
		switch {
		case escaping:
			cur.WriteRune(r)
			escaping = false
		case r == '\\':
			escaping = true
		case string(r) == ListSeparator:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaping {
		cur.WriteRune('\\')
	}
	return append(out, cur.String())
}
