// Package domain models NASA EONET (Earth Observatory Natural Event Tracker)
// natural-event data and the transforms applied to it.
//
// # Data Source
//
// Events come from the EONET v3 REST API,
// https://eonet.gsfc.nasa.gov/api/v3/events, queried by date range. One
// response is a single JSON document whose "events" array holds every event
// active in the range, each carrying its full geometry history.
//
// # EONET Data Conventions
//
// Event identifiers look like "EONET_6532" and are stable across fetches.
//
// Categories:
//
//	{"id": "wildfires", "title": "Wildfires"}
//	Older API versions used numeric ids; both forms are accepted (see [FlexibleID]).
//
// Lifecycle:
//
//	"closed" is null for events still open, otherwise the ISO-8601 time the
//	event was closed. The status (open|closed) is derived from it when the
//	API omits an explicit "status" field.
//
// Geometry:
//
//	Each entry is one dated observation, an "occurrence".
//	Point:   "coordinates": [lon, lat]
//	Polygon: "coordinates": [[[lon, lat], [lon, lat], ...]]  (outer ring first)
//	Dates are ISO-8601, usually "2024-01-01T00:00:00Z"; date-only values are accepted.
//	magnitudeValue/magnitudeUnit are present for some categories (e.g. storms in kts).
//
// # Coordinate Reduction
//
// Every occurrence is reduced to a single longitude/latitude pair. Points use
// their first two components. Polygons use the centroid of the outer ring,
// computed as the vertex mean with the closing vertex excluded when it
// repeats the first. See [reducePosition].
//
// # Deduplication
//
// Events are keyed by identifier and occurrences by (event identifier,
// timestamp). [Merge] keeps the record with the latest FetchedAt per key and
// lets the incoming table win ties, which makes re-running a day's fetch
// last-write-wins across the accumulated CSV history.
//
// # Persisted Rows
//
// [Row] is the joined, CSV-shaped form: one row per occurrence, plus a
// placeholder row with empty occurrence fields for an event that has none.
// List columns are joined with "|" (see [JoinList]).
package domain
