package application

import (
	"context"
	"time"
)

// RoomCatalog exposes read-only room lookups.
type RoomCatalog interface {
	GetRoom(ctx context.Context, id string) (Room, error)
}

// ProfileDirectory lists the user profiles used for owner resolution.
type ProfileDirectory interface {
	ListProfiles(ctx context.Context) ([]UserProfile, error)
}

// BookingRepository captures the booking persistence needed by the services.
//
// CreateBooking and UpdateBooking must enforce the room and owner no-overlap
// invariants for confirmed bookings atomically, reporting violations with
// persistence.ErrRoomOverlap or persistence.ErrOwnerOverlap.
type BookingRepository interface {
	GetBooking(ctx context.Context, id string) (Booking, error)
	// ListConfirmedByRoom returns confirmed bookings whose start lies in [from, to).
	ListConfirmedByRoom(ctx context.Context, roomID string, from, to time.Time) ([]Booking, error)
	// ListConfirmedByOwner returns confirmed bookings overlapping [from, to).
	ListConfirmedByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]Booking, error)
	CreateBooking(ctx context.Context, booking Booking) error
	UpdateBooking(ctx context.Context, booking Booking) error
	DeleteBooking(ctx context.Context, id string) error
	// FindMaterialized looks a booking up by its (template, week) key.
	FindMaterialized(ctx context.Context, templateID string, week time.Time) (Booking, bool, error)
	// InsertMaterialized inserts the booking unless its (template, week) key
	// already exists. It reports whether a row was written.
	InsertMaterialized(ctx context.Context, booking Booking) (bool, error)
}

// TemplateRepository stores timetable templates.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, template Template) error
	UpdateTemplate(ctx context.Context, template Template) error
	GetTemplate(ctx context.Context, id string) (Template, error)
	// ListTemplates returns templates of a room, or of all rooms when roomID is
	// empty. Inactive templates are included only when requested.
	ListTemplates(ctx context.Context, roomID string, includeInactive bool) ([]Template, error)
}

// ExceptionRepository stores template exceptions.
type ExceptionRepository interface {
	// CreateException must reject a second exception for the same (template,
	// week) with persistence.ErrDuplicate.
	CreateException(ctx context.Context, exception TemplateException) error
	ListExceptionsForWeek(ctx context.Context, templateIDs []string, week time.Time) ([]TemplateException, error)
	ListExceptions(ctx context.Context, templateID string) ([]TemplateException, error)
	// ResolveMaterialized atomically records exception and cancels the booking
	// it resolves. An existing exception for the same (template, week) is kept
	// and false is returned.
	ResolveMaterialized(ctx context.Context, exception TemplateException, cancelledAt time.Time) (bool, error)
}

// Notifier is the outbound hook fired after a booking is confirmed. Callers
// never wait on delivery.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, summary BookingSummary) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, []string, BookingSummary) error { return nil }
