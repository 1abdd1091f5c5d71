package persistence

import (
	"context"
	"time"
)

// RoomRepository exposes the room catalog.
type RoomRepository interface {
	UpsertRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
}

// ProfileRepository exposes user profiles.
type ProfileRepository interface {
	UpsertProfile(ctx context.Context, profile UserProfile) error
	GetProfile(ctx context.Context, id string) (UserProfile, error)
	ListProfiles(ctx context.Context) ([]UserProfile, error)
}

// BookingRepository stores bookings. Writes of confirmed bookings must reject
// room and owner overlaps with ErrRoomOverlap and ErrOwnerOverlap.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	UpdateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	// ListConfirmedByRoom returns confirmed bookings of the room starting in [from, to).
	ListConfirmedByRoom(ctx context.Context, roomID string, from, to time.Time) ([]Booking, error)
	// ListConfirmedByOwner returns confirmed bookings of the owner overlapping [from, to).
	ListConfirmedByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]Booking, error)
	FindMaterialized(ctx context.Context, templateID, week string) (Booking, bool, error)
	// InsertMaterialized inserts the booking unless its (template, week) key
	// exists and reports whether a row was written.
	InsertMaterialized(ctx context.Context, booking Booking) (bool, error)
}

// TemplateRepository stores timetable templates.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, template Template) error
	UpdateTemplate(ctx context.Context, template Template) error
	GetTemplate(ctx context.Context, id string) (Template, error)
	ListTemplates(ctx context.Context, roomID string, includeInactive bool) ([]Template, error)
}

// ExceptionRepository stores template exceptions, unique per (template, week).
type ExceptionRepository interface {
	CreateException(ctx context.Context, exception TemplateException) error
	ListExceptionsForWeek(ctx context.Context, templateIDs []string, week string) ([]TemplateException, error)
	ListExceptions(ctx context.Context, templateID string) ([]TemplateException, error)
	// ResolveMaterialized records the exception unless its (template, week)
	// already has one and cancels the pending or confirmed booking named by
	// ResolvedBookingID, in one transaction. It reports whether the exception
	// was written.
	ResolveMaterialized(ctx context.Context, exception TemplateException, cancelledAt time.Time) (bool, error)
}
