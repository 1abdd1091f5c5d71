// Package timetable merges concrete bookings and resolved template
// occurrences into the effective timetable of one room for one week.
package timetable

import (
	"sort"
	"time"

	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

// Kind tags the origin of a slot.
type Kind string

const (
	// KindBooking marks a concrete booking row.
	KindBooking Kind = "booking"
	// KindTemplate marks a virtual template occurrence.
	KindTemplate Kind = "template"
)

// Booking is a confirmed booking as seen by the merger.
type Booking struct {
	ID        string
	RoomID    string
	OwnerID   string
	OwnerName string
	Title     string
	Interval  scheduler.Interval

	TemplateID       string
	GeneratedForWeek time.Time
}

// Template couples a recurrence definition with its display attributes.
type Template struct {
	recurrence.Template
	RoomID      string
	Title       string
	TeacherName string
}

// Slot is one entry of the effective timetable.
type Slot struct {
	Kind               Kind
	Interval           scheduler.Interval
	Title              string
	OwnerOrTeacherName string
	OwnerID            string
	BookingID          string
	TemplateID         string
	WeekStart          time.Time
	Cancelled          bool
	CancelReason       string
}

// Input holds every row the merger needs for one room-week.
type Input struct {
	RoomID     string
	WeekStart  time.Time
	Bookings   []Booking
	Templates  []Template
	Exceptions []recurrence.Exception
	// Materialized lists templates holding a booking row for the week,
	// whatever its status or current start.
	Materialized []string
}

// Merger produces effective timetables. It keeps no state between calls.
type Merger struct {
	engine *recurrence.Engine
}

// NewMerger constructs a merger resolving templates with engine.
func NewMerger(engine *recurrence.Engine) *Merger {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	return &Merger{engine: engine}
}

// Engine exposes the recurrence engine used by the merger.
func (m *Merger) Engine() *recurrence.Engine {
	return m.engine
}

// Merge combines the input rows into an ordered slot list. Bookings outside
// the week are ignored. A template occurrence is suppressed when a booking
// materialized for the same template and week is present, or when the week's
// key is taken by a cancelled or moved booking and no exception cancelled the
// occurrence.
func (m *Merger) Merge(in Input) []Slot {
	weekStart := m.engine.WeekStart(in.WeekStart)
	weekEnd := weekStart.AddDate(0, 0, 7)
	weekKey := recurrence.CivilDate(weekStart)

	slots := make([]Slot, 0, len(in.Bookings)+len(in.Templates))
	materialized := make(map[string]struct{})

	for _, b := range in.Bookings {
		if in.RoomID != "" && b.RoomID != "" && b.RoomID != in.RoomID {
			continue
		}
		if b.Interval.Start.Before(weekStart) || !b.Interval.Start.Before(weekEnd) {
			continue
		}
		if b.TemplateID != "" && !b.GeneratedForWeek.IsZero() && recurrence.CivilDate(b.GeneratedForWeek) == weekKey {
			materialized[b.TemplateID] = struct{}{}
		}
		name := b.OwnerName
		if name == "" {
			name = b.OwnerID
		}
		slots = append(slots, Slot{
			Kind:               KindBooking,
			Interval:           b.Interval,
			Title:              b.Title,
			OwnerOrTeacherName: name,
			OwnerID:            b.OwnerID,
			BookingID:          b.ID,
			TemplateID:         b.TemplateID,
			WeekStart:          weekStart,
		})
	}

	byID := make(map[string]Template, len(in.Templates))
	recurrences := make([]recurrence.Template, 0, len(in.Templates))
	for _, tpl := range in.Templates {
		if in.RoomID != "" && tpl.RoomID != "" && tpl.RoomID != in.RoomID {
			continue
		}
		if _, seen := byID[tpl.ID]; seen {
			continue
		}
		byID[tpl.ID] = tpl
		recurrences = append(recurrences, tpl.Template)
	}

	exceptions := recurrence.NewExceptionSet(in.Exceptions)
	keyed := make(map[string]struct{}, len(in.Materialized))
	for _, id := range in.Materialized {
		keyed[id] = struct{}{}
	}
	for _, occ := range m.engine.ResolveWeek(recurrences, weekStart, exceptions) {
		if _, suppressed := materialized[occ.TemplateID]; suppressed {
			continue
		}
		if _, taken := keyed[occ.TemplateID]; taken && !occ.Cancelled {
			continue
		}
		tpl := byID[occ.TemplateID]
		slots = append(slots, Slot{
			Kind:               KindTemplate,
			Interval:           occ.Interval,
			Title:              tpl.Title,
			OwnerOrTeacherName: tpl.TeacherName,
			TemplateID:         occ.TemplateID,
			WeekStart:          occ.WeekStart,
			Cancelled:          occ.Cancelled,
			CancelReason:       occ.CancelReason,
		})
	}

	sortSlots(slots)
	return slots
}

// Occupants converts slots into conflict occupants for room-level checks.
func Occupants(roomID string, slots []Slot) []scheduler.Occupant {
	occupants := make([]scheduler.Occupant, 0, len(slots))
	for _, slot := range slots {
		occupant := scheduler.Occupant{
			BookingID: slot.BookingID,
			RoomID:    roomID,
			OwnerID:   slot.OwnerID,
			Title:     slot.Title,
			Interval:  slot.Interval,
			Cancelled: slot.Cancelled,
		}
		if slot.Kind == KindTemplate {
			occupant.TemplateID = slot.TemplateID
			occupant.WeekStart = slot.WeekStart
		}
		occupants = append(occupants, occupant)
	}
	return occupants
}

// Visible filters out cancelled slots, which presentation usually hides.
func Visible(slots []Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		if !slot.Cancelled {
			out = append(out, slot)
		}
	}
	return out
}

func sortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.Interval.Start.Equal(b.Interval.Start) {
			return a.Interval.Start.Before(b.Interval.Start)
		}
		if a.Kind != b.Kind {
			return a.Kind == KindBooking
		}
		if a.BookingID != b.BookingID {
			return a.BookingID < b.BookingID
		}
		return a.TemplateID < b.TemplateID
	})
}
