package scheduler

import (
	"sort"
	"time"
)

// Occupant is anything that holds a room or a person for an interval: a
// confirmed booking or a resolved template occurrence.
type Occupant struct {
	BookingID  string
	TemplateID string
	WeekStart  time.Time
	RoomID     string
	OwnerID    string
	Title      string
	Interval   Interval
	Cancelled  bool
}

// Candidate describes the interval a caller wants to occupy together with the
// occupants that must be ignored while checking it.
type Candidate struct {
	RoomID   string
	OwnerID  string
	Interval Interval

	// ExcludeBookingID skips the booking being edited.
	ExcludeBookingID string
	// ExcludeTemplateID and ExcludeWeek skip the template occurrence being
	// materialized.
	ExcludeTemplateID string
	ExcludeWeek       time.Time
}

// ConflictType describes which party a conflict is attributed to.
type ConflictType string

const (
	// ConflictTypeRoom indicates the room is already occupied.
	ConflictTypeRoom ConflictType = "room"
	// ConflictTypeOwner indicates the owner already holds another booking.
	ConflictTypeOwner ConflictType = "owner"
)

// Conflict details an overlapping occupant that callers can present to users.
type Conflict struct {
	Type       ConflictType
	BookingID  string
	TemplateID string
	RoomID     string
	OwnerID    string
	Title      string
	Interval   Interval
}

// DetectConflicts checks the candidate against the room's occupants and the
// owner's confirmed bookings. Room conflicts are reported before owner
// conflicts, each group ordered by start time. Cancelled occupants never
// conflict.
func DetectConflicts(candidate Candidate, roomOccupants, ownerOccupants []Occupant) []Conflict {
	if candidate.Interval.Empty() {
		return nil
	}

	roomConflicts := collect(candidate, roomOccupants, ConflictTypeRoom, func(o Occupant) bool {
		return candidate.RoomID == "" || o.RoomID == "" || o.RoomID == candidate.RoomID
	})
	ownerConflicts := collect(candidate, ownerOccupants, ConflictTypeOwner, func(o Occupant) bool {
		return candidate.OwnerID != "" && o.OwnerID == candidate.OwnerID
	})

	if len(roomConflicts) == 0 && len(ownerConflicts) == 0 {
		return nil
	}
	return append(roomConflicts, ownerConflicts...)
}

// FirstConflict returns the first conflict DetectConflicts would report.
func FirstConflict(candidate Candidate, roomOccupants, ownerOccupants []Occupant) (Conflict, bool) {
	conflicts := DetectConflicts(candidate, roomOccupants, ownerOccupants)
	if len(conflicts) == 0 {
		return Conflict{}, false
	}
	return conflicts[0], true
}

func collect(candidate Candidate, occupants []Occupant, kind ConflictType, relevant func(Occupant) bool) []Conflict {
	var out []Conflict
	for _, occupant := range occupants {
		if occupant.Cancelled || !relevant(occupant) || candidate.excludes(occupant) {
			continue
		}
		if !Overlaps(candidate.Interval, occupant.Interval) {
			continue
		}
		out = append(out, Conflict{
			Type:       kind,
			BookingID:  occupant.BookingID,
			TemplateID: occupant.TemplateID,
			RoomID:     occupant.RoomID,
			OwnerID:    occupant.OwnerID,
			Title:      occupant.Title,
			Interval:   occupant.Interval,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Interval.Start.Before(out[j].Interval.Start)
	})
	return out
}

func (c Candidate) excludes(o Occupant) bool {
	if c.ExcludeBookingID != "" && o.BookingID == c.ExcludeBookingID {
		return true
	}
	if c.ExcludeTemplateID != "" && o.BookingID == "" && o.TemplateID == c.ExcludeTemplateID {
		return o.WeekStart.Equal(c.ExcludeWeek)
	}
	return false
}
