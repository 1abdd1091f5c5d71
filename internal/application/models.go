package application

import (
	"time"

	"github.com/example/room-timetable/internal/scheduler"
)

// Principal represents the user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// Room is the facilities view of a bookable room.
type Room struct {
	ID               string
	Name             string
	Capacity         int
	Type             string
	RequiresApproval bool
	Active           bool
}

// UserProfile is the directory entry used for owner resolution.
type UserProfile struct {
	ID       string
	FullName string
	IsAdmin  bool
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusDenied    BookingStatus = "denied"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is a concrete reservation of a room.
type Booking struct {
	ID      string
	RoomID  string
	OwnerID string
	Title   string
	Notes   string
	Start   time.Time
	End     time.Time
	Status  BookingStatus

	TemplateID       string
	GeneratedForWeek time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Interval returns the booking's half-open interval.
func (b Booking) Interval() scheduler.Interval {
	return scheduler.NewInterval(b.Start, b.End)
}

// Materialized reports whether the booking originated from a template.
func (b Booking) Materialized() bool {
	return b.TemplateID != ""
}

// Template is a recurring weekly timetable entry for a room.
type Template struct {
	ID                  string
	RoomID              string
	TeacherName         string
	Title               string
	Weekday             int
	StartMinute         int
	DurationMinutes     int
	RepeatIntervalWeeks int
	EffectiveFrom       time.Time
	Active              bool
	Notes               string
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TemplateException cancels a single week's occurrence of a template.
type TemplateException struct {
	ID                string
	TemplateID        string
	WeekStart         time.Time
	Reason            string
	ResolvedBookingID string
	CreatedBy         string
	CreatedAt         time.Time
}

// BookingRequest captures the caller supplied fields of a new booking.
type BookingRequest struct {
	Principal Principal
	RoomID    string
	OwnerID   string
	Title     string
	Notes     string
	Start     time.Time
	End       time.Time
}

// BookingUpdate captures an owner edit of an existing booking.
type BookingUpdate struct {
	Principal Principal
	BookingID string
	Title     string
	// Notes replaces the stored notes when non-nil.
	Notes *string
	Start time.Time
	End   time.Time
}

// TemplateInput captures administrator supplied template fields.
type TemplateInput struct {
	RoomID              string
	TeacherName         string
	Title               string
	Weekday             int
	StartMinute         int
	DurationMinutes     int
	RepeatIntervalWeeks int
	EffectiveFrom       time.Time
	Notes               string
}

// BookingSummary is the payload handed to the notification hook.
type BookingSummary struct {
	BookingID string
	RoomID    string
	RoomName  string
	Title     string
	Start     time.Time
	End       time.Time
	Status    BookingStatus
}
