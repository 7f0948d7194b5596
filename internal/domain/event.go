package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventsDocument is the top-level JSON body returned by the events endpoint.
type EventsDocument struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Link        string     `json:"link,omitempty"`
	Events      []RawEvent `json:"events"`

	// Raw holds the response body exactly as received, for snapshots.
	Raw []byte `json:"-"`
}

// RawEvent is one event as it appears in the API response.
type RawEvent struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Link        string        `json:"link"`
	Closed      string        `json:"closed"` // null (open) or ISO-8601
	Status      string        `json:"status,omitempty"`
	Categories  []RawCategory `json:"categories"`
	Sources     []RawSource   `json:"sources"`
	Geometry    []RawGeometry `json:"geometry"`
}

// RawCategory is a category reference inside a RawEvent.
type RawCategory struct {
	ID    FlexibleID `json:"id"`
	Title string     `json:"title"`
}

// RawSource is a source reference inside a RawEvent.
type RawSource struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// RawGeometry is one dated observation. Coordinates stay raw until the
// geometry type is known.
type RawGeometry struct {
	MagnitudeValue *float64        `json:"magnitudeValue"`
	MagnitudeUnit  string          `json:"magnitudeUnit"`
	Date           string          `json:"date"`
	Type           string          `json:"type"`
	Coordinates    json.RawMessage `json:"coordinates"`
}

// FlexibleID accepts either a JSON string or a JSON number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// Status is the lifecycle state of an event.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// GeometryType is the kind of an occurrence's geometry.
type GeometryType string

const (
	GeometryPoint   GeometryType = "Point"
	GeometryPolygon GeometryType = "Polygon"
)

// Category is a labelled grouping such as "Wildfires".
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Source identifies an upstream agency that reported the event.
type Source struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Event is the normalized, immutable metadata of one natural event.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Link        string     `json:"link,omitempty"`
	Categories  []Category `json:"categories,omitempty"`
	Sources     []Source   `json:"sources,omitempty"`
	Closed      time.Time  `json:"closed,omitzero"`
	Status      Status     `json:"status,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// CategoryIDs returns the category identifiers in order.
func (e Event) CategoryIDs() []string {
	if len(e.Categories) == 0 {
		return nil
	}
	ids := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		ids[i] = c.ID
	}
	return ids
}

// CategoryTitles returns the category titles in order.
func (e Event) CategoryTitles() []string {
	if len(e.Categories) == 0 {
		return nil
	}
	titles := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		titles[i] = c.Title
	}
	return titles
}

// Position is a [longitude, latitude] pair.
type Position [2]float64

// Occurrence is one time-stamped, located observation of an event.
type Occurrence struct {
	EventID     string       `json:"event_id"`
	Date        time.Time    `json:"date"`
	Type        GeometryType `json:"type"`
	Coordinates []Position   `json:"coordinates,omitempty"`
	Longitude   float64      `json:"longitude"`
	Latitude    float64      `json:"latitude"`
	Year        int          `json:"year"`
	Month       int          `json:"month"`
	Day         int          `json:"day"`

	MagnitudeValue *float64 `json:"magnitude_value,omitempty"`
	MagnitudeUnit  string   `json:"magnitude_unit,omitempty"`

	// Geocoding enrichment.
	PlaceName string `json:"place_name,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Table is a set of events and their occurrences, related by event ID.
type Table struct {
	Events      []Event
	Occurrences []Occurrence
}

// Len reports the number of events and occurrences.
func (t Table) Len() (events, occurrences int) {
	return len(t.Events), len(t.Occurrences)
}
