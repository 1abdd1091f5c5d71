package scheduler

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval builds an interval from its bounds without validating them.
func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Valid reports whether the interval has a strictly positive duration.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

// Empty reports whether the interval covers no time at all.
func (i Interval) Empty() bool {
	return !i.Valid()
}

// Duration returns the length of the interval, zero for empty intervals.
func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// In converts both bounds to loc.
func (i Interval) In(loc *time.Location) Interval {
	return Interval{Start: i.Start.In(loc), End: i.End.In(loc)}
}

// Equal reports whether both bounds denote the same instants.
func (i Interval) Equal(other Interval) bool {
	return i.Start.Equal(other.Start) && i.End.Equal(other.End)
}

// Overlaps reports whether a and b share any instant.
//
// Boundaries are exclusive at the end, so back-to-back intervals do not
// overlap, and an empty interval never overlaps anything.
func Overlaps(a, b Interval) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Overlaps is a method form of the package level predicate.
func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i, other)
}
