package domain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date format used by the API and CLI.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DefaultDateRange returns yesterday through today, the daily automation window.
func DefaultDateRange() DateRange {
	today := truncateDay(Now())
	return DateRange{Start: today.AddDate(0, 0, -1), End: today}
}

// LookbackRange returns the range ending yesterday and spanning d before it.
func LookbackRange(d time.Duration) DateRange {
	end := truncateDay(Now()).AddDate(0, 0, -1)
	return DateRange{Start: truncateDay(end.Add(-d)), End: end}
}

// ParseDateRange parses ISO dates, substituting the default range for empty
// values. With only an end date, the start defaults to the day before it.
// The start must not be after the end.
func ParseDateRange(start, end string) (DateRange, error) {
	r := DefaultDateRange()
	if start != "" {
		t, err := time.Parse(DateLayout, start)
		if err != nil {
			return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
		}
		r.Start = t
	}
	if end != "" {
		t, err := time.Parse(DateLayout, end)
		if err != nil {
			return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
		}
		r.End = t
		if start == "" {
			r.Start = t.AddDate(0, 0, -1)
		}
	}
	if r.Start.After(r.End) {
		return DateRange{}, errors.New("start date is after end date")
	}
	return r, nil
}

// StartString formats the start date as YYYY-MM-DD.
func (r DateRange) StartString() string { return r.Start.Format(DateLayout) }

// EndString formats the end date as YYYY-MM-DD.
func (r DateRange) EndString() string { return r.End.Format(DateLayout) }

func (r DateRange) String() string {
	return r.StartString() + " to " + r.EndString()
}

// Query selects events from the API.
type Query struct {
	Range    DateRange
	Status   string // "open", "closed", "all", or empty for the API default
	Category string
	Limit    int
}

// Key returns a stable identity for the query, used as a cache key.
func (q Query) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", q.Range.StartString(), q.Range.EndString(), q.Status, q.Category, q.Limit)
}

// EventFetcher retrieves the events document for a query.
type EventFetcher interface {
	FetchEvents(ctx context.Context, q Query) (EventsDocument, error)
}

// ParseYear reads a year selector. Empty means the current year; "all" or
// "0" means every year and returns 0.
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return Now().Year(), nil
	case "all", "0":
		return 0, nil
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1 || year > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return year, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
