package scheduling

import "time"

// GridSlots enumerates candidate start times between open and close on a
// fixed step, keeping those whose interval fits entirely before close
// and does not collide with any busy interval. The result is sorted by
// construction. Pure; no I/O.
func GridSlots(open, close time.Time, step, duration time.Duration, busy []Interval) []time.Time {
	var slots []time.Time
	for t := open; !t.Add(duration).After(close); t = t.Add(step) {
		cand := Interval{Start: t, End: t.Add(duration)}
		if cand.OverlapsAny(busy) {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}
