package persistence

import "time"

// DateLayout formats civil dates such as week starts and effective dates.
const DateLayout = "2006-01-02"

// Room represents a bookable room maintained by facilities.
type Room struct {
	ID               string
	Name             string
	Capacity         int
	Type             string
	RequiresApproval bool
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserProfile is the directory entry used to resolve template teachers.
type UserProfile struct {
	ID        string
	FullName  string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Booking represents a concrete room reservation.
type Booking struct {
	ID      string
	RoomID  string
	OwnerID string
	Title   string
	Notes   string
	Start   time.Time
	End     time.Time
	Status  string
	// TemplateID and GeneratedForWeek are set together for bookings
	// materialized from a template. GeneratedForWeek uses DateLayout.
	TemplateID       *string
	GeneratedForWeek *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Template represents a recurring weekly timetable entry.
type Template struct {
	ID                  string
	RoomID              string
	TeacherName         string
	Title               string
	Weekday             int
	StartMinute         int
	DurationMinutes     int
	RepeatIntervalWeeks int
	EffectiveFrom       string
	Active              bool
	Notes               string
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TemplateException cancels a single week of a template.
type TemplateException struct {
	ID                string
	TemplateID        string
	WeekStart         string
	Reason            string
	ResolvedBookingID *string
	CreatedBy         string
	CreatedAt         time.Time
}
