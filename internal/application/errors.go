package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/scheduler"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a uniqueness rule rejects a write.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidTransition is returned when a booking cannot move to the requested status.
	ErrInvalidTransition = errors.New("application: invalid status transition")
)

// Reason is a machine readable rejection code.
type Reason string

const (
	ReasonInvalidInput          Reason = "invalid_input"
	ReasonInvalidInterval       Reason = "invalid_interval"
	ReasonOutsideOperatingHours Reason = "outside_operating_hours"
	ReasonWeekendNotAllowed     Reason = "weekend_not_allowed"
	ReasonStartInPast           Reason = "start_in_past"
	ReasonRoomInactive          Reason = "room_inactive"
	ReasonRoomConflict          Reason = "room_conflict"
	ReasonOwnerConflict         Reason = "owner_conflict"
	ReasonOwnerUnresolved       Reason = "owner_unresolved"
	ReasonTemplateConflict      Reason = "template_conflict"
)

// ValidationError captures input problems the caller can fix by changing the request.
type ValidationError struct {
	Reason      Reason
	FieldErrors map[string]string
}

func newValidationError(reason Reason, field, message string) *ValidationError {
	v := &ValidationError{Reason: reason}
	v.add(field, message)
	return v
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+v.FieldErrors[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if v.Reason == "" {
		v.Reason = ReasonInvalidInput
	}
	v.FieldErrors[field] = message
}

// ConflictError reports that the requested interval overlaps an existing
// occupant of the room or of the owner's personal schedule.
type ConflictError struct {
	Party      scheduler.ConflictType
	BookingID  string
	TemplateID string
	RoomID     string
	Interval   scheduler.Interval
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil {
		return ""
	}
	switch c.Party {
	case scheduler.ConflictTypeOwner:
		return "conflict: owner already has a booking at this time"
	default:
		return "conflict: room is not available at this time"
	}
}

// Reason returns the machine readable code for the conflicting party.
func (c *ConflictError) Reason() Reason {
	if c != nil && c.Party == scheduler.ConflictTypeOwner {
		return ReasonOwnerConflict
	}
	return ReasonRoomConflict
}

func conflictFrom(c scheduler.Conflict) *ConflictError {
	return &ConflictError{
		Party:      c.Type,
		BookingID:  c.BookingID,
		TemplateID: c.TemplateID,
		RoomID:     c.RoomID,
		Interval:   c.Interval,
	}
}

// RaceLostError reports that storage rejected a write another writer won
// concurrently. It unwraps to the ConflictError the caller would have seen.
type RaceLostError struct {
	Conflict *ConflictError
}

// Error implements the error interface.
func (r *RaceLostError) Error() string {
	if r == nil || r.Conflict == nil {
		return "conflict: slot was taken concurrently"
	}
	return r.Conflict.Error()
}

// Unwrap exposes the underlying conflict.
func (r *RaceLostError) Unwrap() error {
	if r == nil || r.Conflict == nil {
		return nil
	}
	return r.Conflict
}

// DataIntegrityError reports a template occurrence the materialization job
// could not turn into a booking.
type DataIntegrityError struct {
	TemplateID string
	WeekStart  time.Time
	Reason     Reason
	Detail     string
	Err        error
}

// Error implements the error interface.
func (d *DataIntegrityError) Error() string {
	if d == nil {
		return ""
	}
	msg := fmt.Sprintf("data integrity: template %s week %s: %s", d.TemplateID, d.WeekStart.Format("2006-01-02"), d.Reason)
	if d.Detail != "" {
		msg += ": " + d.Detail
	}
	return msg
}

// Unwrap exposes the cause, if any.
func (d *DataIntegrityError) Unwrap() error {
	if d == nil {
		return nil
	}
	return d.Err
}

// RejectionReason extracts the machine readable reason from an admission error.
func RejectionReason(err error) (Reason, bool) {
	var dErr *DataIntegrityError
	if errors.As(err, &dErr) {
		return dErr.Reason, true
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Reason, true
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return cErr.Reason(), true
	}
	return "", false
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrRoomOverlap):
		return &RaceLostError{Conflict: &ConflictError{Party: scheduler.ConflictTypeRoom}}
	case errors.Is(err, persistence.ErrOwnerOverlap):
		return &RaceLostError{Conflict: &ConflictError{Party: scheduler.ConflictTypeOwner}}
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return newValidationError(ReasonInvalidInput, "reference", "related records are missing")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError(ReasonInvalidInterval, "time", "start must be before end")
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
