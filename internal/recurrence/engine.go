package recurrence

import (
	"errors"
	"sort"
	"time"

	"github.com/example/room-timetable/internal/scheduler"
)

// DateLayout is the civil date format used for week keys and effective dates.
const DateLayout = "2006-01-02"

const (
	daysPerWeek   = 7
	minutesPerDay = 24 * 60
)

// Template is the recurrence part of a timetable template: every
// RepeatIntervalWeeks weeks on Weekday, starting with the week of
// EffectiveFrom.
type Template struct {
	ID string
	// Weekday counts from Monday (0) to Sunday (6).
	Weekday int
	// StartMinute is the local time of day in minutes after midnight.
	StartMinute         int
	Duration            time.Duration
	RepeatIntervalWeeks int
	EffectiveFrom       time.Time
	Active              bool
}

// Occurrence is one concrete instance of a template in a specific week.
type Occurrence struct {
	TemplateID string
	WeekStart  time.Time
	Interval   scheduler.Interval

	Cancelled    bool
	CancelReason string
	ExceptionID  string
}

// Engine resolves templates into occurrences in the institutional location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that computes local dates in loc.
// If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

var (
	// ErrInvalidRepeatInterval indicates a repeat interval below one week.
	ErrInvalidRepeatInterval = errors.New("recurrence: repeat interval must be at least one week")
	// ErrInvalidWeekday indicates a weekday outside Monday..Sunday.
	ErrInvalidWeekday = errors.New("recurrence: weekday must be between 0 (Monday) and 6 (Sunday)")
	// ErrInvalidStartTime indicates a time of day outside the day.
	ErrInvalidStartTime = errors.New("recurrence: start time must fall within the day")
	// ErrInvalidDuration indicates a non-positive duration.
	ErrInvalidDuration = errors.New("recurrence: duration must be positive")
	// ErrEffectiveFromNotMonday indicates an effective date that does not start a week.
	ErrEffectiveFromNotMonday = errors.New("recurrence: effective date must be a Monday")
)

// Location returns the engine's institutional location.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Validate reports every structural problem with the template. Values are
// rejected, never coerced.
func (e *Engine) Validate(t Template) error {
	var errs []error
	if t.RepeatIntervalWeeks < 1 {
		errs = append(errs, ErrInvalidRepeatInterval)
	}
	if t.Weekday < 0 || t.Weekday >= daysPerWeek {
		errs = append(errs, ErrInvalidWeekday)
	}
	if t.StartMinute < 0 || t.StartMinute >= minutesPerDay {
		errs = append(errs, ErrInvalidStartTime)
	}
	if t.Duration <= 0 {
		errs = append(errs, ErrInvalidDuration)
	}
	if t.EffectiveFrom.IsZero() || !e.IsWeekStart(t.EffectiveFrom) {
		errs = append(errs, ErrEffectiveFromNotMonday)
	}
	return errors.Join(errs...)
}

// WeekStart returns local midnight of the Monday on or before t.
func (e *Engine) WeekStart(t time.Time) time.Time {
	loc := e.Location()
	y, m, d := t.In(loc).Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, loc)
	offset := (int(date.Weekday()) + 6) % daysPerWeek
	return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
}

// IsWeekStart reports whether t falls on a Monday in the engine location.
func (e *Engine) IsWeekStart(t time.Time) bool {
	return t.In(e.Location()).Weekday() == time.Monday
}

// Weeks returns count consecutive week starts beginning with the week of from.
func (e *Engine) Weeks(from time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	start := e.WeekStart(from)
	y, m, d := start.Date()
	weeks := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		weeks = append(weeks, time.Date(y, m, d+i*daysPerWeek, 0, 0, 0, 0, e.Location()))
	}
	return weeks
}

// WeeksSpanning returns the week starts touched by the interval.
func (e *Engine) WeeksSpanning(interval scheduler.Interval) []time.Time {
	if interval.Empty() {
		return nil
	}
	first := e.WeekStart(interval.Start)
	last := e.WeekStart(interval.End.Add(-time.Nanosecond))
	count := int(e.civilDays(first, last)/daysPerWeek) + 1
	return e.Weeks(first, count)
}

// WeeksSince returns floor((weekStart - mondayOf(effectiveFrom)) / 7 days).
func (e *Engine) WeeksSince(t Template, weekStart time.Time) int {
	from := e.WeekStart(t.EffectiveFrom)
	return floorDiv(e.civilDays(from, e.WeekStart(weekStart)), daysPerWeek)
}

// Eligible reports whether the template produces an occurrence in the week
// starting at weekStart.
func (e *Engine) Eligible(t Template, weekStart time.Time) bool {
	if !t.Active || t.RepeatIntervalWeeks < 1 {
		return false
	}
	weeks := e.WeeksSince(t, weekStart)
	return weeks >= 0 && weeks%t.RepeatIntervalWeeks == 0
}

// Resolve computes the template's occurrence for the week starting at
// weekStart. The second result is false when the template is not eligible.
func (e *Engine) Resolve(t Template, weekStart time.Time) (Occurrence, bool) {
	if !e.Eligible(t, weekStart) {
		return Occurrence{}, false
	}
	week := e.WeekStart(weekStart)
	y, m, d := week.Date()
	start := time.Date(y, m, d+t.Weekday, 0, t.StartMinute, 0, 0, e.Location())
	return Occurrence{
		TemplateID: t.ID,
		WeekStart:  week,
		Interval:   scheduler.NewInterval(start, start.Add(t.Duration)),
	}, true
}

// ResolveWeek resolves and overlays every template for one week. Cancelled
// occurrences are kept. The result is ordered by start then template id.
func (e *Engine) ResolveWeek(templates []Template, weekStart time.Time, exceptions ExceptionSet) []Occurrence {
	occurrences := make([]Occurrence, 0, len(templates))
	for _, tpl := range templates {
		occ, ok := e.Resolve(tpl, weekStart)
		if !ok {
			continue
		}
		occurrences = append(occurrences, exceptions.Overlay(occ))
	}
	sort.SliceStable(occurrences, func(i, j int) bool {
		a, b := occurrences[i], occurrences[j]
		if !a.Interval.Start.Equal(b.Interval.Start) {
			return a.Interval.Start.Before(b.Interval.Start)
		}
		return a.TemplateID < b.TemplateID
	})
	return occurrences
}

// civilDays counts calendar days from a to b, ignoring DST shifts.
func (e *Engine) civilDays(a, b time.Time) int {
	ay, am, ad := a.In(e.Location()).Date()
	by, bm, bd := b.In(e.Location()).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
