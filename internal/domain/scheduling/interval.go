package scheduling

import "time"

// Interval is a half-open time range [Start, End). Two back-to-back
// appointments sharing a boundary instant do not overlap.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two intervals share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// OverlapsAny reports whether the interval collides with any of the
// given intervals.
func (i Interval) OverlapsAny(existing []Interval) bool {
	for _, e := range existing {
		if i.Overlaps(e) {
			return true
		}
	}
	return false
}

// Duration returns the interval's length.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}
