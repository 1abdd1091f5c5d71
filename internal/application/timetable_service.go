package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
	"github.com/example/room-timetable/internal/timetable"
)

// TimetableService loads the rows of a room-week and hands them to the merger.
// It keeps no cache; every call reads current rows.
type TimetableService struct {
	bookings   BookingRepository
	templates  TemplateRepository
	exceptions ExceptionRepository
	profiles   ProfileDirectory
	merger     *timetable.Merger
	logger     *slog.Logger
}

// NewTimetableService wires dependencies for timetable reads. profiles may be
// nil, in which case booking slots show owner ids instead of names.
func NewTimetableService(bookings BookingRepository, templates TemplateRepository, exceptions ExceptionRepository, profiles ProfileDirectory, merger *timetable.Merger, logger *slog.Logger) *TimetableService {
	if merger == nil {
		merger = timetable.NewMerger(nil)
	}
	return &TimetableService{
		bookings:   bookings,
		templates:  templates,
		exceptions: exceptions,
		profiles:   profiles,
		merger:     merger,
		logger:     defaultLogger(logger),
	}
}

// Engine exposes the recurrence engine shared with the merger.
func (s *TimetableService) Engine() *recurrence.Engine {
	return s.merger.Engine()
}

// GetEffectiveTimetable returns the merged, ordered slots of a room for the
// week starting at weekStart. Cancelled template occurrences are included.
func (s *TimetableService) GetEffectiveTimetable(ctx context.Context, roomID string, weekStart time.Time) ([]timetable.Slot, error) {
	if s == nil {
		return nil, fmt.Errorf("TimetableService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "timetable", "get_effective_timetable", "room_id", roomID)

	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, newValidationError(ReasonInvalidInput, "room_id", "room is required")
	}
	if weekStart.IsZero() || !s.Engine().IsWeekStart(weekStart) {
		return nil, newValidationError(ReasonInvalidInput, "week_start", "week start must be a Monday")
	}

	in, err := s.loadWeek(ctx, roomID, s.Engine().WeekStart(weekStart))
	if err != nil {
		logOutcome(ctx, logger, "failed to load timetable rows", err)
		return nil, err
	}

	if s.profiles != nil && len(in.Bookings) > 0 {
		profiles, err := s.profiles.ListProfiles(ctx)
		if err != nil {
			return nil, err
		}
		names := make(map[string]string, len(profiles))
		for _, p := range profiles {
			names[p.ID] = p.FullName
		}
		for i := range in.Bookings {
			in.Bookings[i].OwnerName = names[in.Bookings[i].OwnerID]
		}
	}

	slots := s.merger.Merge(in)
	logger.DebugContext(ctx, "timetable resolved", "week_start", recurrence.CivilDate(in.WeekStart), "slots", len(slots))
	return slots, nil
}

// CheckSlotAvailability reports whether the room is free for the interval,
// ignoring excludeBookingID. Only the room-level check is performed.
func (s *TimetableService) CheckSlotAvailability(ctx context.Context, roomID string, interval scheduler.Interval, excludeBookingID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("TimetableService is nil")
	}
	if strings.TrimSpace(roomID) == "" {
		return false, newValidationError(ReasonInvalidInput, "room_id", "room is required")
	}
	if !interval.Valid() {
		return false, newValidationError(ReasonInvalidInterval, "end", "start must be before end")
	}

	occupants, err := s.roomOccupants(ctx, roomID, interval)
	if err != nil {
		return false, err
	}
	candidate := scheduler.Candidate{RoomID: roomID, Interval: interval, ExcludeBookingID: excludeBookingID}
	_, conflict := scheduler.FirstConflict(candidate, occupants, nil)
	return !conflict, nil
}

// roomOccupants merges every week the interval touches and returns the slots
// as conflict occupants.
func (s *TimetableService) roomOccupants(ctx context.Context, roomID string, interval scheduler.Interval) ([]scheduler.Occupant, error) {
	var occupants []scheduler.Occupant
	for _, week := range s.Engine().WeeksSpanning(interval) {
		in, err := s.loadWeek(ctx, roomID, week)
		if err != nil {
			return nil, err
		}
		occupants = append(occupants, timetable.Occupants(roomID, s.merger.Merge(in))...)
	}
	return occupants, nil
}

// checkConflicts is the conflict stage shared by admission and
// materialization: the room check against the merged view of every week the
// interval touches, then the owner check against confirmed bookings in any
// room. The first conflict is returned as a *ConflictError.
func (s *TimetableService) checkConflicts(ctx context.Context, candidate scheduler.Candidate) error {
	roomOccupants, err := s.roomOccupants(ctx, candidate.RoomID, candidate.Interval)
	if err != nil {
		return err
	}
	if conflict, found := scheduler.FirstConflict(candidate, roomOccupants, nil); found {
		return conflictFrom(conflict)
	}

	ownerBookings, err := s.bookings.ListConfirmedByOwner(ctx, candidate.OwnerID, candidate.Interval.Start, candidate.Interval.End)
	if err != nil {
		return mapRepoError(err)
	}
	if conflict, found := scheduler.FirstConflict(candidate, nil, bookingOccupants(ownerBookings)); found {
		return conflictFrom(conflict)
	}
	return nil
}

func (s *TimetableService) loadWeek(ctx context.Context, roomID string, week time.Time) (timetable.Input, error) {
	in := timetable.Input{RoomID: roomID, WeekStart: week}

	bookings, err := s.bookings.ListConfirmedByRoom(ctx, roomID, week, week.AddDate(0, 0, 7))
	if err != nil {
		return in, mapRepoError(err)
	}
	for _, b := range bookings {
		in.Bookings = append(in.Bookings, toTimetableBooking(b))
	}

	templates, err := s.templates.ListTemplates(ctx, roomID, false)
	if err != nil {
		return in, mapRepoError(err)
	}
	ids := make([]string, 0, len(templates))
	for _, tpl := range templates {
		in.Templates = append(in.Templates, toTimetableTemplate(tpl))
		ids = append(ids, tpl.ID)

		occ, eligible := s.Engine().Resolve(toRecurrenceTemplate(tpl), week)
		if !eligible {
			continue
		}
		if _, found, err := s.bookings.FindMaterialized(ctx, tpl.ID, occ.WeekStart); err != nil {
			return in, mapRepoError(err)
		} else if found {
			in.Materialized = append(in.Materialized, tpl.ID)
		}
	}

	if len(ids) > 0 {
		exceptions, err := s.exceptions.ListExceptionsForWeek(ctx, ids, week)
		if err != nil {
			return in, mapRepoError(err)
		}
		for _, ex := range exceptions {
			in.Exceptions = append(in.Exceptions, toRecurrenceException(ex))
		}
	}
	return in, nil
}

func toTimetableBooking(b Booking) timetable.Booking {
	return timetable.Booking{
		ID:               b.ID,
		RoomID:           b.RoomID,
		OwnerID:          b.OwnerID,
		Title:            b.Title,
		Interval:         b.Interval(),
		TemplateID:       b.TemplateID,
		GeneratedForWeek: b.GeneratedForWeek,
	}
}

func toRecurrenceTemplate(t Template) recurrence.Template {
	return recurrence.Template{
		ID:                  t.ID,
		Weekday:             t.Weekday,
		StartMinute:         t.StartMinute,
		Duration:            time.Duration(t.DurationMinutes) * time.Minute,
		RepeatIntervalWeeks: t.RepeatIntervalWeeks,
		EffectiveFrom:       t.EffectiveFrom,
		Active:              t.Active,
	}
}

func toTimetableTemplate(t Template) timetable.Template {
	return timetable.Template{
		Template:    toRecurrenceTemplate(t),
		RoomID:      t.RoomID,
		Title:       t.Title,
		TeacherName: t.TeacherName,
	}
}

func toRecurrenceException(e TemplateException) recurrence.Exception {
	return recurrence.Exception{
		ID:                e.ID,
		TemplateID:        e.TemplateID,
		WeekStart:         e.WeekStart,
		Reason:            e.Reason,
		ResolvedBookingID: e.ResolvedBookingID,
	}
}

func bookingOccupants(bookings []Booking) []scheduler.Occupant {
	occupants := make([]scheduler.Occupant, 0, len(bookings))
	for _, b := range bookings {
		occupants = append(occupants, scheduler.Occupant{
			BookingID: b.ID,
			RoomID:    b.RoomID,
			OwnerID:   b.OwnerID,
			Title:     b.Title,
			Interval:  b.Interval(),
			Cancelled: b.Status != BookingStatusConfirmed,
		})
	}
	return occupants
}
