package domain

import (
	"errors"
	"fmt"
)

// ErrNoEvents is returned when a fetch yields an empty event list.
var ErrNoEvents = errors.New("no events in response")

// RecordError describes one malformed record that was skipped during
// normalization. Index is the event's position in the response; Geometry is
// the geometry position, or -1 when the whole event was skipped.
type RecordError struct {
	EventID  string
	Index    int
	Geometry int
	Reason   string
}

func (e RecordError) Error() string {
	if e.Geometry < 0 {
		return fmt.Sprintf("event %d (%q): %s", e.Index, e.EventID, e.Reason)
	}
	return fmt.Sprintf("event %d (%q) geometry %d: %s", e.Index, e.EventID, e.Geometry, e.Reason)
}
