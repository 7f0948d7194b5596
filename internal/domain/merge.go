package domain

import (
	"sort"
	"time"
)

// occurrenceKey identifies an occurrence across fetches.
type occurrenceKey struct {
	eventID string
	date    int64
}

func keyOf(o Occurrence) occurrenceKey {
	return occurrenceKey{eventID: o.EventID, date: o.Date.UnixNano()}
}

// Merge combines accumulated history with a new batch and returns a new
// table holding one record per key: events by ID, occurrences by
// (event ID, date). The record with the latest FetchedAt wins; on a tie the
// one seen last wins, so incoming beats existing. Neither input is modified.
// The result is sorted by key.
func Merge(existing, incoming Table) Table {
	events := make(map[string]Event, len(existing.Events)+len(incoming.Events))
	occurrences := make(map[occurrenceKey]Occurrence, len(existing.Occurrences)+len(incoming.Occurrences))

	for _, t := range []Table{existing, incoming} {
		for _, e := range t.Events {
			if cur, ok := events[e.ID]; ok && newer(cur.FetchedAt, e.FetchedAt) {
				continue
			}
			events[e.ID] = e
		}
		for _, o := range t.Occurrences {
			k := keyOf(o)
			if cur, ok := occurrences[k]; ok && newer(cur.FetchedAt, o.FetchedAt) {
				continue
			}
			occurrences[k] = o
		}
	}

	out := Table{
		Events:      make([]Event, 0, len(events)),
		Occurrences: make([]Occurrence, 0, len(occurrences)),
	}
	for _, e := range events {
		out.Events = append(out.Events, e)
	}
	for _, o := range occurrences {
		out.Occurrences = append(out.Occurrences, o)
	}

	sort.Slice(out.Events, func(i, j int) bool { return out.Events[i].ID < out.Events[j].ID })
	sort.Slice(out.Occurrences, func(i, j int) bool {
		a, b := out.Occurrences[i], out.Occurrences[j]
		if a.EventID != b.EventID {
			return a.EventID < b.EventID
		}
		return a.Date.Before(b.Date)
	})
	return out
}

// Dedupe reduces a single table to one record per key using the same rule
// as Merge.
func Dedupe(t Table) Table {
	return Merge(Table{}, t)
}

// newer reports whether current was fetched strictly after candidate.
func newer(current, candidate time.Time) bool {
	return current.After(candidate)
}
