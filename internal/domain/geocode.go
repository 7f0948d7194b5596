package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding returns a copy of the table whose occurrences carry a
// place name resolved from their coordinates. A nil geocoder returns the
// table unchanged; a failed lookup leaves that occurrence's place name empty.
func EnrichWithGeocoding(ctx context.Context, t Table, geocoder Geocoder, logger *slog.Logger) Table {
	if geocoder == nil || len(t.Occurrences) == 0 {
		return t
	}

	occurrences := make([]Occurrence, len(t.Occurrences))
	copy(occurrences, t.Occurrences)

	for i := range occurrences {
		if ctx.Err() != nil {
			break
		}
		o := &occurrences[i]
		if o.Latitude == 0 && o.Longitude == 0 {
			continue
		}

		result, err := geocoder.ReverseGeocode(ctx, o.Latitude, o.Longitude)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"event_id", o.EventID,
				"lat", o.Latitude,
				"lon", o.Longitude,
				"error", err,
			)
			continue
		}
		if result.FormattedAddress != "" {
			o.PlaceName = result.FormattedAddress
		} else if result.PlaceName != "" {
			o.PlaceName = result.PlaceName
		}
	}

	return Table{Events: t.Events, Occurrences: occurrences}
}
