package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing geometry and closed dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// Normalize flattens an events document into an event table and an
// occurrence table joined by event ID. Events with no geometry produce an
// event and no occurrences. Malformed records are skipped and reported in
// the returned slice instead of failing the batch.
func Normalize(doc EventsDocument, fetchedAt time.Time) (Table, []RecordError) {
	fetchedAt = fetchedAt.UTC()

	var (
		table   Table
		skipped []RecordError
	)

	for i, raw := range doc.Events {
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			skipped = append(skipped, RecordError{Index: i, Geometry: -1, Reason: "missing id"})
			continue
		}

		table.Events = append(table.Events, normalizeEvent(id, raw, fetchedAt))

		occurrences := make([]Occurrence, 0, len(raw.Geometry))
		for j, geom := range raw.Geometry {
			occ, err := normalizeGeometry(id, geom, fetchedAt)
			if err != nil {
				skipped = append(skipped, RecordError{EventID: id, Index: i, Geometry: j, Reason: err.Error()})
				continue
			}
			occurrences = append(occurrences, occ)
		}
		sort.SliceStable(occurrences, func(a, b int) bool {
			return occurrences[a].Date.Before(occurrences[b].Date)
		})
		table.Occurrences = append(table.Occurrences, occurrences...)
	}

	return table, skipped
}

func normalizeEvent(id string, raw RawEvent, fetchedAt time.Time) Event {
	event := Event{
		ID:          id,
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
		Link:        strings.TrimSpace(raw.Link),
		FetchedAt:   fetchedAt,
	}

	if len(raw.Categories) > 0 {
		event.Categories = make([]Category, len(raw.Categories))
		for i, c := range raw.Categories {
			event.Categories[i] = Category{ID: string(c.ID), Title: c.Title}
		}
	}
	if len(raw.Sources) > 0 {
		event.Sources = make([]Source, len(raw.Sources))
		for i, s := range raw.Sources {
			event.Sources[i] = Source{ID: s.ID, URL: s.URL}
		}
	}

	closed := strings.TrimSpace(raw.Closed)
	if closed != "" {
		if t, err := parseDate(closed); err == nil {
			event.Closed = t
		}
	}
	event.Status = normalizeStatus(raw.Status, closed)

	return event
}

// normalizeStatus prefers an explicit status and otherwise derives it from
// the closed field.
func normalizeStatus(status, closed string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "open":
		return StatusOpen
	case "closed":
		return StatusClosed
	}
	if closed != "" {
		return StatusClosed
	}
	return StatusOpen
}

func normalizeGeometry(eventID string, geom RawGeometry, fetchedAt time.Time) (Occurrence, error) {
	date, err := parseDate(geom.Date)
	if err != nil {
		return Occurrence{}, err
	}

	positions, shape, err := parseCoordinates(geom.Coordinates)
	if err != nil {
		return Occurrence{}, err
	}
	center := reducePosition(positions)

	return Occurrence{
		EventID:        eventID,
		Date:           date,
		Type:           shape,
		Coordinates:    positions,
		Longitude:      center[0],
		Latitude:       center[1],
		Year:           date.Year(),
		Month:          int(date.Month()),
		Day:            date.Day(),
		MagnitudeValue: geom.MagnitudeValue,
		MagnitudeUnit:  strings.TrimSpace(geom.MagnitudeUnit),
		FetchedAt:      fetchedAt,
	}, nil
}

// parseDate accepts RFC 3339 timestamps and bare ISO dates, returning UTC.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// parseCoordinates decodes a Point ([lon, lat, ...]) or a Polygon
// ([[[lon, lat], ...], ...]) and returns the point or the outer ring along
// with the shape that was decoded. The shape wins over the declared type.
// Null components are rejected.
func parseCoordinates(raw json.RawMessage) ([]Position, GeometryType, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, "", errors.New("missing coordinates")
	}

	var point []*float64
	if err := json.Unmarshal(raw, &point); err == nil {
		pos, err := parsePosition(point)
		if err != nil {
			return nil, "", err
		}
		return []Position{pos}, GeometryPoint, nil
	}

	var polygon [][][]*float64
	if err := json.Unmarshal(raw, &polygon); err != nil {
		return nil, "", fmt.Errorf("unsupported coordinates: %w", err)
	}
	if len(polygon) == 0 || len(polygon[0]) == 0 {
		return nil, "", errors.New("polygon has no vertices")
	}

	ring := make([]Position, 0, len(polygon[0]))
	for _, vertex := range polygon[0] {
		pos, err := parsePosition(vertex)
		if err != nil {
			return nil, "", fmt.Errorf("polygon vertex: %w", err)
		}
		ring = append(ring, pos)
	}
	return ring, GeometryPolygon, nil
}

func parsePosition(components []*float64) (Position, error) {
	if len(components) < 2 {
		return Position{}, errors.New("fewer than two components")
	}
	if components[0] == nil || components[1] == nil {
		return Position{}, errors.New("null coordinate component")
	}
	pos := Position{*components[0], *components[1]}
	if !validPosition(pos) {
		return Position{}, fmt.Errorf("coordinates out of range: %v", pos)
	}
	return pos, nil
}

func validPosition(p Position) bool {
	lon, lat := p[0], p[1]
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// reducePosition collapses a geometry to one point: the point itself, or the
// vertex mean of a ring. A closing vertex equal to the first is excluded.
func reducePosition(positions []Position) Position {
	if len(positions) == 1 {
		return positions[0]
	}
	ring := positions
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	var sumLon, sumLat float64
	for _, p := range ring {
		sumLon += p[0]
		sumLat += p[1]
	}
	n := float64(len(ring))
	return Position{sumLon / n, sumLat / n}
}

// Validate checks that every occurrence references an event in the table.
func Validate(t Table) error {
	ids := make(map[string]struct{}, len(t.Events))
	for _, e := range t.Events {
		ids[e.ID] = struct{}{}
	}
	var errs []error
	for _, o := range t.Occurrences {
		if _, ok := ids[o.EventID]; !ok {
			errs = append(errs, fmt.Errorf("occurrence %s at %s has no matching event", o.EventID, o.Date.Format(time.RFC3339)))
		}
	}
	return errors.Join(errs...)
}
