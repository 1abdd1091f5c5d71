// Package storage adapts the persistence repositories to the ports consumed by
// the application services. Civil dates travel as YYYY-MM-DD strings in
// storage and as local midnights in the institutional location above it.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/persistence"
)

// Backend is the full set of repositories a persistence driver provides.
type Backend struct {
	Rooms      persistence.RoomRepository
	Profiles   persistence.ProfileRepository
	Bookings   persistence.BookingRepository
	Templates  persistence.TemplateRepository
	Exceptions persistence.ExceptionRepository
}

// Adapter implements every application repository port on top of a Backend.
type Adapter struct {
	backend  Backend
	location *time.Location
}

var (
	_ application.RoomCatalog         = (*Adapter)(nil)
	_ application.ProfileDirectory    = (*Adapter)(nil)
	_ application.BookingRepository   = (*Adapter)(nil)
	_ application.TemplateRepository  = (*Adapter)(nil)
	_ application.ExceptionRepository = (*Adapter)(nil)
)

// New returns an adapter parsing civil dates in loc.
func New(backend Backend, loc *time.Location) *Adapter {
	if loc == nil {
		loc = time.UTC
	}
	return &Adapter{backend: backend, location: loc}
}

// GetRoom implements application.RoomCatalog.
func (a *Adapter) GetRoom(ctx context.Context, id string) (application.Room, error) {
	room, err := a.backend.Rooms.GetRoom(ctx, id)
	if err != nil {
		return application.Room{}, err
	}
	return application.Room{
		ID:               room.ID,
		Name:             room.Name,
		Capacity:         room.Capacity,
		Type:             room.Type,
		RequiresApproval: room.RequiresApproval,
		Active:           room.Active,
	}, nil
}

// ListProfiles implements application.ProfileDirectory.
func (a *Adapter) ListProfiles(ctx context.Context) ([]application.UserProfile, error) {
	profiles, err := a.backend.Profiles.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.UserProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, application.UserProfile{ID: p.ID, FullName: p.FullName, IsAdmin: p.IsAdmin})
	}
	return out, nil
}

// GetBooking implements application.BookingRepository.
func (a *Adapter) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	booking, err := a.backend.Bookings.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return a.toBooking(booking)
}

func (a *Adapter) ListConfirmedByRoom(ctx context.Context, roomID string, from, to time.Time) ([]application.Booking, error) {
	bookings, err := a.backend.Bookings.ListConfirmedByRoom(ctx, roomID, from, to)
	if err != nil {
		return nil, err
	}
	return a.toBookings(bookings)
}

func (a *Adapter) ListConfirmedByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]application.Booking, error) {
	bookings, err := a.backend.Bookings.ListConfirmedByOwner(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	return a.toBookings(bookings)
}

func (a *Adapter) CreateBooking(ctx context.Context, booking application.Booking) error {
	return a.backend.Bookings.CreateBooking(ctx, a.fromBooking(booking))
}

func (a *Adapter) UpdateBooking(ctx context.Context, booking application.Booking) error {
	return a.backend.Bookings.UpdateBooking(ctx, a.fromBooking(booking))
}

func (a *Adapter) DeleteBooking(ctx context.Context, id string) error {
	return a.backend.Bookings.DeleteBooking(ctx, id)
}

func (a *Adapter) FindMaterialized(ctx context.Context, templateID string, week time.Time) (application.Booking, bool, error) {
	booking, found, err := a.backend.Bookings.FindMaterialized(ctx, templateID, a.formatDate(week))
	if err != nil || !found {
		return application.Booking{}, found, err
	}
	converted, err := a.toBooking(booking)
	if err != nil {
		return application.Booking{}, false, err
	}
	return converted, true, nil
}

func (a *Adapter) InsertMaterialized(ctx context.Context, booking application.Booking) (bool, error) {
	return a.backend.Bookings.InsertMaterialized(ctx, a.fromBooking(booking))
}

// CreateTemplate implements application.TemplateRepository.
func (a *Adapter) CreateTemplate(ctx context.Context, tpl application.Template) error {
	return a.backend.Templates.CreateTemplate(ctx, a.fromTemplate(tpl))
}

func (a *Adapter) UpdateTemplate(ctx context.Context, tpl application.Template) error {
	return a.backend.Templates.UpdateTemplate(ctx, a.fromTemplate(tpl))
}

func (a *Adapter) GetTemplate(ctx context.Context, id string) (application.Template, error) {
	tpl, err := a.backend.Templates.GetTemplate(ctx, id)
	if err != nil {
		return application.Template{}, err
	}
	return a.toTemplate(tpl)
}

func (a *Adapter) ListTemplates(ctx context.Context, roomID string, includeInactive bool) ([]application.Template, error) {
	templates, err := a.backend.Templates.ListTemplates(ctx, roomID, includeInactive)
	if err != nil {
		return nil, err
	}
	out := make([]application.Template, 0, len(templates))
	for _, tpl := range templates {
		converted, err := a.toTemplate(tpl)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

// CreateException implements application.ExceptionRepository.
func (a *Adapter) CreateException(ctx context.Context, exception application.TemplateException) error {
	return a.backend.Exceptions.CreateException(ctx, a.fromException(exception))
}

func (a *Adapter) ResolveMaterialized(ctx context.Context, exception application.TemplateException, cancelledAt time.Time) (bool, error) {
	return a.backend.Exceptions.ResolveMaterialized(ctx, a.fromException(exception), cancelledAt)
}

func (a *Adapter) fromException(exception application.TemplateException) persistence.TemplateException {
	return persistence.TemplateException{
		ID:                exception.ID,
		TemplateID:        exception.TemplateID,
		WeekStart:         a.formatDate(exception.WeekStart),
		Reason:            exception.Reason,
		ResolvedBookingID: optional(exception.ResolvedBookingID),
		CreatedBy:         exception.CreatedBy,
		CreatedAt:         exception.CreatedAt,
	}
}

func (a *Adapter) ListExceptionsForWeek(ctx context.Context, templateIDs []string, week time.Time) ([]application.TemplateException, error) {
	exceptions, err := a.backend.Exceptions.ListExceptionsForWeek(ctx, templateIDs, a.formatDate(week))
	if err != nil {
		return nil, err
	}
	return a.toExceptions(exceptions)
}

func (a *Adapter) ListExceptions(ctx context.Context, templateID string) ([]application.TemplateException, error) {
	exceptions, err := a.backend.Exceptions.ListExceptions(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return a.toExceptions(exceptions)
}

func (a *Adapter) formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(a.location).Format(persistence.DateLayout)
}

func (a *Adapter) parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(persistence.DateLayout, value, a.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %v", persistence.ErrConstraintViolation, field, value, err)
	}
	return t, nil
}

func (a *Adapter) toBooking(b persistence.Booking) (application.Booking, error) {
	out := application.Booking{
		ID:        b.ID,
		RoomID:    b.RoomID,
		OwnerID:   b.OwnerID,
		Title:     b.Title,
		Notes:     b.Notes,
		Start:     b.Start,
		End:       b.End,
		Status:    application.BookingStatus(b.Status),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	if b.TemplateID != nil {
		out.TemplateID = *b.TemplateID
	}
	if b.GeneratedForWeek != nil {
		week, err := a.parseDate("generated_for_week", *b.GeneratedForWeek)
		if err != nil {
			return application.Booking{}, err
		}
		out.GeneratedForWeek = week
	}
	return out, nil
}

func (a *Adapter) toBookings(bookings []persistence.Booking) ([]application.Booking, error) {
	out := make([]application.Booking, 0, len(bookings))
	for _, b := range bookings {
		converted, err := a.toBooking(b)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func (a *Adapter) fromBooking(b application.Booking) persistence.Booking {
	out := persistence.Booking{
		ID:         b.ID,
		RoomID:     b.RoomID,
		OwnerID:    b.OwnerID,
		Title:      b.Title,
		Notes:      b.Notes,
		Start:      b.Start,
		End:        b.End,
		Status:     string(b.Status),
		TemplateID: optional(b.TemplateID),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
	if !b.GeneratedForWeek.IsZero() {
		week := a.formatDate(b.GeneratedForWeek)
		out.GeneratedForWeek = &week
	}
	return out
}

func (a *Adapter) toTemplate(t persistence.Template) (application.Template, error) {
	effective, err := a.parseDate("effective_from", t.EffectiveFrom)
	if err != nil {
		return application.Template{}, err
	}
	return application.Template{
		ID:                  t.ID,
		RoomID:              t.RoomID,
		TeacherName:         t.TeacherName,
		Title:               t.Title,
		Weekday:             t.Weekday,
		StartMinute:         t.StartMinute,
		DurationMinutes:     t.DurationMinutes,
		RepeatIntervalWeeks: t.RepeatIntervalWeeks,
		EffectiveFrom:       effective,
		Active:              t.Active,
		Notes:               t.Notes,
		CreatedBy:           t.CreatedBy,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}, nil
}

func (a *Adapter) fromTemplate(t application.Template) persistence.Template {
	return persistence.Template{
		ID:                  t.ID,
		RoomID:              t.RoomID,
		TeacherName:         t.TeacherName,
		Title:               t.Title,
		Weekday:             t.Weekday,
		StartMinute:         t.StartMinute,
		DurationMinutes:     t.DurationMinutes,
		RepeatIntervalWeeks: t.RepeatIntervalWeeks,
		EffectiveFrom:       a.formatDate(t.EffectiveFrom),
		Active:              t.Active,
		Notes:               t.Notes,
		CreatedBy:           t.CreatedBy,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

func (a *Adapter) toExceptions(exceptions []persistence.TemplateException) ([]application.TemplateException, error) {
	out := make([]application.TemplateException, 0, len(exceptions))
	for _, e := range exceptions {
		week, err := a.parseDate("week_start_date", e.WeekStart)
		if err != nil {
			return nil, err
		}
		converted := application.TemplateException{
			ID:         e.ID,
			TemplateID: e.TemplateID,
			WeekStart:  week,
			Reason:     e.Reason,
			CreatedBy:  e.CreatedBy,
			CreatedAt:  e.CreatedAt,
		}
		if e.ResolvedBookingID != nil {
			converted.ResolvedBookingID = *e.ResolvedBookingID
		}
		out = append(out, converted)
	}
	return out, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
