package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/room-timetable/internal/persistence"
)

var (
	roomCounter     uint64
	profileCounter  uint64
	templateCounter uint64
)

// referenceTime is a Wednesday so that the following week is in the future.
var referenceTime = time.Date(2024, time.January, 10, 6, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// NextMonday returns the first Monday after ReferenceTime, at midnight UTC.
func NextMonday() time.Time {
	return time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic room record.
type RoomFixture struct {
	ID               string
	Name             string
	Capacity         int
	Type             string
	RequiresApproval bool
	Active           bool
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns an active room that confirms bookings immediately.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	fixture := RoomFixture{
		ID:       fmt.Sprintf("room-%03d", idx),
		Name:     fmt.Sprintf("Room %03d", idx),
		Capacity: 30,
		Type:     "classroom",
		Active:   true,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) {
		f.ID = id
	}
}

// WithRoomApproval marks the room as requiring administrator approval.
func WithRoomApproval() RoomOption {
	return func(f *RoomFixture) {
		f.RequiresApproval = true
	}
}

// WithRoomInactive deactivates the room.
func WithRoomInactive() RoomOption {
	return func(f *RoomFixture) {
		f.Active = false
	}
}

// Persistence converts the fixture into its storage form.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		ID:               f.ID,
		Name:             f.Name,
		Capacity:         f.Capacity,
		Type:             f.Type,
		RequiresApproval: f.RequiresApproval,
		Active:           f.Active,
		CreatedAt:        referenceTime,
		UpdatedAt:        referenceTime,
	}
}

// ---------------------------- Profile fixtures ----------------------------

// ProfileFixture represents a deterministic directory entry.
type ProfileFixture struct {
	ID       string
	FullName string
	IsAdmin  bool
}

// ProfileOption configures the generated profile fixture.
type ProfileOption func(*ProfileFixture)

// NewProfileFixture returns a non-admin profile with a unique name.
func NewProfileFixture(opts ...ProfileOption) ProfileFixture {
	idx := atomic.AddUint64(&profileCounter, 1)
	fixture := ProfileFixture{
		ID:       fmt.Sprintf("user-%03d", idx),
		FullName: fmt.Sprintf("Teacher %03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithProfileID overrides the generated profile ID.
func WithProfileID(id string) ProfileOption {
	return func(f *ProfileFixture) {
		f.ID = id
	}
}

// WithProfileName overrides the full name used for teacher matching.
func WithProfileName(name string) ProfileOption {
	return func(f *ProfileFixture) {
		f.FullName = name
	}
}

// WithProfileAdmin grants administrator rights.
func WithProfileAdmin() ProfileOption {
	return func(f *ProfileFixture) {
		f.IsAdmin = true
	}
}

// Persistence converts the fixture into its storage form.
func (f ProfileFixture) Persistence() persistence.UserProfile {
	return persistence.UserProfile{
		ID:        f.ID,
		FullName:  f.FullName,
		IsAdmin:   f.IsAdmin,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
}

// --------------------------- Template fixtures ---------------------------

// TemplateFixture represents a weekly template starting NextMonday.
type TemplateFixture struct {
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
	CreatedBy           string
}

// TemplateOption configures the generated template fixture.
type TemplateOption func(*TemplateFixture)

// NewTemplateFixture returns a weekly Monday 09:00-10:00 template for roomID.
func NewTemplateFixture(roomID string, opts ...TemplateOption) TemplateFixture {
	idx := atomic.AddUint64(&templateCounter, 1)
	fixture := TemplateFixture{
		ID:                  fmt.Sprintf("tpl-%03d", idx),
		RoomID:              roomID,
		TeacherName:         "Teacher 001",
		Title:               fmt.Sprintf("Lesson %03d", idx),
		Weekday:             0,
		StartMinute:         9 * 60,
		DurationMinutes:     60,
		RepeatIntervalWeeks: 1,
		EffectiveFrom:       NextMonday(),
		Active:              true,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTemplateID overrides the generated template ID.
func WithTemplateID(id string) TemplateOption {
	return func(f *TemplateFixture) {
		f.ID = id
	}
}

// WithTemplateTeacher sets the teacher name resolved against profiles.
func WithTemplateTeacher(name string) TemplateOption {
	return func(f *TemplateFixture) {
		f.TeacherName = name
	}
}

// WithTemplateSlot sets the weekday (0 = Monday) and local start time.
func WithTemplateSlot(weekday, startMinute, durationMinutes int) TemplateOption {
	return func(f *TemplateFixture) {
		f.Weekday = weekday
		f.StartMinute = startMinute
		f.DurationMinutes = durationMinutes
	}
}

// WithTemplateInterval sets the repeat interval in weeks.
func WithTemplateInterval(weeks int) TemplateOption {
	return func(f *TemplateFixture) {
		f.RepeatIntervalWeeks = weeks
	}
}

// WithTemplateCreator records who created the template.
func WithTemplateCreator(id string) TemplateOption {
	return func(f *TemplateFixture) {
		f.CreatedBy = id
	}
}

// Persistence converts the fixture into its storage form.
func (f TemplateFixture) Persistence() persistence.Template {
	return persistence.Template{
		ID:                  f.ID,
		RoomID:              f.RoomID,
		TeacherName:         f.TeacherName,
		Title:               f.Title,
		Weekday:             f.Weekday,
		StartMinute:         f.StartMinute,
		DurationMinutes:     f.DurationMinutes,
		RepeatIntervalWeeks: f.RepeatIntervalWeeks,
		EffectiveFrom:       f.EffectiveFrom.Format(persistence.DateLayout),
		Active:              f.Active,
		CreatedBy:           f.CreatedBy,
		CreatedAt:           referenceTime,
		UpdatedAt:           referenceTime,
	}
}
