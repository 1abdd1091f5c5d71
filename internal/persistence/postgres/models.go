package postgres

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/example/room-timetable/internal/persistence"
)

type roomRow struct {
	ID               string    `gorm:"primaryKey;size:64"`
	Name             string    `gorm:"size:256;not null"`
	Capacity         int       `gorm:"not null;check:capacity >= 0"`
	RoomType         string    `gorm:"size:64;not null"`
	RequiresApproval bool      `gorm:"not null"`
	IsActive         bool      `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (roomRow) TableName() string { return "rooms" }

type profileRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	FullName  string    `gorm:"size:256;not null"`
	IsAdmin   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (profileRow) TableName() string { return "user_profiles" }

type templateRow struct {
	ID                  string         `gorm:"primaryKey;size:64"`
	RoomID              string         `gorm:"size:64;not null;index"`
	TeacherName         string         `gorm:"size:256;not null"`
	Title               string         `gorm:"size:256;not null"`
	Weekday             int            `gorm:"not null;check:weekday BETWEEN 0 AND 6"`
	StartMinute         int            `gorm:"not null;check:start_minute BETWEEN 0 AND 1439"`
	DurationMinutes     int            `gorm:"not null;check:duration_minutes > 0"`
	RepeatIntervalWeeks int            `gorm:"not null;check:repeat_interval_weeks >= 1"`
	EffectiveFrom       datatypes.Date `gorm:"not null"`
	IsActive            bool           `gorm:"not null;index"`
	Notes               string         `gorm:"not null"`
	CreatedBy           string         `gorm:"size:64;not null"`
	CreatedAt           time.Time      `gorm:"not null;autoCreateTime:false"`
	UpdatedAt           time.Time      `gorm:"not null;autoUpdateTime:false"`
}

func (templateRow) TableName() string { return "timetable_templates" }

type bookingRow struct {
	ID               string          `gorm:"primaryKey;size:64"`
	RoomID           string          `gorm:"size:64;not null;index:idx_bookings_room_start,priority:1"`
	OwnerID          string          `gorm:"size:64;not null;index:idx_bookings_owner_start,priority:1"`
	Title            string          `gorm:"size:256;not null"`
	Notes            string          `gorm:"not null"`
	StartTime        time.Time       `gorm:"type:timestamptz;not null;index:idx_bookings_room_start,priority:2;index:idx_bookings_owner_start,priority:2"`
	EndTime          time.Time       `gorm:"type:timestamptz;not null"`
	Status           string          `gorm:"size:16;not null;check:status IN ('pending','confirmed','denied','cancelled')"`
	TemplateID       *string         `gorm:"size:64;uniqueIndex:idx_bookings_template_week,priority:1"`
	GeneratedForWeek *datatypes.Date `gorm:"uniqueIndex:idx_bookings_template_week,priority:2"`
	CreatedAt        time.Time       `gorm:"not null;autoCreateTime:false"`
	UpdatedAt        time.Time       `gorm:"not null;autoUpdateTime:false"`
}

func (bookingRow) TableName() string { return "bookings" }

type exceptionRow struct {
	ID                string         `gorm:"primaryKey;size:64"`
	TemplateID        string         `gorm:"size:64;not null;uniqueIndex:idx_exceptions_template_week,priority:1"`
	WeekStartDate     datatypes.Date `gorm:"not null;uniqueIndex:idx_exceptions_template_week,priority:2"`
	Reason            string         `gorm:"not null"`
	ResolvedBookingID *string        `gorm:"size:64"`
	CreatedBy         string         `gorm:"size:64;not null"`
	CreatedAt         time.Time      `gorm:"not null;autoCreateTime:false"`
}

func (exceptionRow) TableName() string { return "template_exceptions" }

func parseDate(value string) (datatypes.Date, error) {
	t, err := time.Parse(persistence.DateLayout, value)
	if err != nil {
		return datatypes.Date{}, fmt.Errorf("%w: invalid date %q", persistence.ErrConstraintViolation, value)
	}
	return datatypes.Date(t), nil
}

func formatDate(date datatypes.Date) string {
	return time.Time(date).Format(persistence.DateLayout)
}

func toRoomRow(room persistence.Room) roomRow {
	return roomRow{
		ID:               room.ID,
		Name:             room.Name,
		Capacity:         room.Capacity,
		RoomType:         room.Type,
		RequiresApproval: room.RequiresApproval,
		IsActive:         room.Active,
		CreatedAt:        room.CreatedAt.UTC(),
		UpdatedAt:        room.UpdatedAt.UTC(),
	}
}

func (r roomRow) toPersistence() persistence.Room {
	return persistence.Room{
		ID:               r.ID,
		Name:             r.Name,
		Capacity:         r.Capacity,
		Type:             r.RoomType,
		RequiresApproval: r.RequiresApproval,
		Active:           r.IsActive,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r profileRow) toPersistence() persistence.UserProfile {
	return persistence.UserProfile{
		ID:        r.ID,
		FullName:  r.FullName,
		IsAdmin:   r.IsAdmin,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func toTemplateRow(template persistence.Template) (templateRow, error) {
	effectiveFrom, err := parseDate(template.EffectiveFrom)
	if err != nil {
		return templateRow{}, err
	}
	return templateRow{
		ID:                  template.ID,
		RoomID:              template.RoomID,
		TeacherName:         template.TeacherName,
		Title:               template.Title,
		Weekday:             template.Weekday,
		StartMinute:         template.StartMinute,
		DurationMinutes:     template.DurationMinutes,
		RepeatIntervalWeeks: template.RepeatIntervalWeeks,
		EffectiveFrom:       effectiveFrom,
		IsActive:            template.Active,
		Notes:               template.Notes,
		CreatedBy:           template.CreatedBy,
		CreatedAt:           template.CreatedAt.UTC(),
		UpdatedAt:           template.UpdatedAt.UTC(),
	}, nil
}

func (r templateRow) toPersistence() persistence.Template {
	return persistence.Template{
		ID:                  r.ID,
		RoomID:              r.RoomID,
		TeacherName:         r.TeacherName,
		Title:               r.Title,
		Weekday:             r.Weekday,
		StartMinute:         r.StartMinute,
		DurationMinutes:     r.DurationMinutes,
		RepeatIntervalWeeks: r.RepeatIntervalWeeks,
		EffectiveFrom:       formatDate(r.EffectiveFrom),
		Active:              r.IsActive,
		Notes:               r.Notes,
		CreatedBy:           r.CreatedBy,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}

func toBookingRow(booking persistence.Booking) (bookingRow, error) {
	row := bookingRow{
		ID:         booking.ID,
		RoomID:     booking.RoomID,
		OwnerID:    booking.OwnerID,
		Title:      booking.Title,
		Notes:      booking.Notes,
		StartTime:  booking.Start.UTC(),
		EndTime:    booking.End.UTC(),
		Status:     booking.Status,
		TemplateID: booking.TemplateID,
		CreatedAt:  booking.CreatedAt.UTC(),
		UpdatedAt:  booking.UpdatedAt.UTC(),
	}
	if booking.GeneratedForWeek != nil {
		week, err := parseDate(*booking.GeneratedForWeek)
		if err != nil {
			return bookingRow{}, err
		}
		row.GeneratedForWeek = &week
	}
	return row, nil
}

func (r bookingRow) toPersistence() persistence.Booking {
	booking := persistence.Booking{
		ID:         r.ID,
		RoomID:     r.RoomID,
		OwnerID:    r.OwnerID,
		Title:      r.Title,
		Notes:      r.Notes,
		Start:      r.StartTime.UTC(),
		End:        r.EndTime.UTC(),
		Status:     r.Status,
		TemplateID: r.TemplateID,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.GeneratedForWeek != nil {
		week := formatDate(*r.GeneratedForWeek)
		booking.GeneratedForWeek = &week
	}
	return booking
}

func toExceptionRow(exception persistence.TemplateException) (exceptionRow, error) {
	if exception.ID == "" || exception.TemplateID == "" {
		return exceptionRow{}, persistence.ErrConstraintViolation
	}
	week, err := parseDate(exception.WeekStart)
	if err != nil {
		return exceptionRow{}, err
	}
	return exceptionRow{
		ID:                exception.ID,
		TemplateID:        exception.TemplateID,
		WeekStartDate:     week,
		Reason:            exception.Reason,
		ResolvedBookingID: exception.ResolvedBookingID,
		CreatedBy:         exception.CreatedBy,
		CreatedAt:         exception.CreatedAt.UTC(),
	}, nil
}

func (r exceptionRow) toPersistence() persistence.TemplateException {
	return persistence.TemplateException{
		ID:                r.ID,
		TemplateID:        r.TemplateID,
		WeekStart:         formatDate(r.WeekStartDate),
		Reason:            r.Reason,
		ResolvedBookingID: r.ResolvedBookingID,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         r.CreatedAt.UTC(),
	}
}
