package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-timetable/internal/recurrence"
)

// TemplateService administers timetable templates and their exceptions.
type TemplateService struct {
	templates   TemplateRepository
	exceptions  ExceptionRepository
	bookings    BookingRepository
	rooms       RoomCatalog
	profiles    ProfileDirectory
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewTemplateService wires dependencies for template administration.
func NewTemplateService(templates TemplateRepository, exceptions ExceptionRepository, bookings BookingRepository, rooms RoomCatalog, profiles ProfileDirectory, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *TemplateService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TemplateService{
		templates:   templates,
		exceptions:  exceptions,
		bookings:    bookings,
		rooms:       rooms,
		profiles:    profiles,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateTemplate validates and stores a new active template. Invalid repeat
// intervals and other structural problems are rejected, never coerced.
func (s *TemplateService) CreateTemplate(ctx context.Context, principal Principal, input TemplateInput) (Template, error) {
	if s == nil {
		return Template{}, fmt.Errorf("TemplateService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "template", "create_template", "room_id", input.RoomID)
	if !principal.IsAdmin {
		logOutcome(ctx, logger, "template rejected", ErrUnauthorized)
		return Template{}, ErrUnauthorized
	}

	now := s.now()
	tpl := Template{
		ID:                  s.idGenerator(),
		RoomID:              strings.TrimSpace(input.RoomID),
		TeacherName:         strings.TrimSpace(input.TeacherName),
		Title:               strings.TrimSpace(input.Title),
		Weekday:             input.Weekday,
		StartMinute:         input.StartMinute,
		DurationMinutes:     input.DurationMinutes,
		RepeatIntervalWeeks: input.RepeatIntervalWeeks,
		EffectiveFrom:       input.EffectiveFrom,
		Active:              true,
		Notes:               input.Notes,
		CreatedBy:           principal.UserID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.validateTemplate(ctx, tpl); err != nil {
		logOutcome(ctx, logger, "template rejected", err)
		return Template{}, err
	}

	if err := s.templates.CreateTemplate(ctx, tpl); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "template insert failed", mapped)
		return Template{}, mapped
	}
	logger.InfoContext(ctx, "template created", "template_id", tpl.ID)
	return tpl, nil
}

// UpdateTemplate replaces the editable fields of a template. Already
// materialized bookings are not touched.
func (s *TemplateService) UpdateTemplate(ctx context.Context, principal Principal, templateID string, input TemplateInput) (Template, error) {
	logger := serviceLogger(ctx, s.logger, "template", "update_template", "template_id", templateID)
	if !principal.IsAdmin {
		logOutcome(ctx, logger, "template update rejected", ErrUnauthorized)
		return Template{}, ErrUnauthorized
	}
	current, err := s.getTemplate(ctx, templateID)
	if err != nil {
		return Template{}, err
	}

	updated := current
	updated.RoomID = strings.TrimSpace(input.RoomID)
	updated.TeacherName = strings.TrimSpace(input.TeacherName)
	updated.Title = strings.TrimSpace(input.Title)
	updated.Weekday = input.Weekday
	updated.StartMinute = input.StartMinute
	updated.DurationMinutes = input.DurationMinutes
	updated.RepeatIntervalWeeks = input.RepeatIntervalWeeks
	updated.EffectiveFrom = input.EffectiveFrom
	updated.Notes = input.Notes
	updated.UpdatedAt = s.now()

	if err := s.validateTemplate(ctx, updated); err != nil {
		logOutcome(ctx, logger, "template update rejected", err)
		return Template{}, err
	}
	if err := s.templates.UpdateTemplate(ctx, updated); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "template update failed", mapped)
		return Template{}, mapped
	}
	logger.InfoContext(ctx, "template updated")
	return updated, nil
}

// DeactivateTemplate stops a template from producing occurrences. Templates
// are never deleted.
func (s *TemplateService) DeactivateTemplate(ctx context.Context, principal Principal, templateID string) (Template, error) {
	logger := serviceLogger(ctx, s.logger, "template", "deactivate_template", "template_id", templateID)
	if !principal.IsAdmin {
		return Template{}, ErrUnauthorized
	}
	tpl, err := s.getTemplate(ctx, templateID)
	if err != nil {
		return Template{}, err
	}
	if !tpl.Active {
		return tpl, nil
	}
	tpl.Active = false
	tpl.UpdatedAt = s.now()
	if err := s.templates.UpdateTemplate(ctx, tpl); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "template deactivation failed", mapped)
		return Template{}, mapped
	}
	logger.InfoContext(ctx, "template deactivated")
	return tpl, nil
}

// ListTemplates returns the templates of a room, or of every room when roomID
// is empty.
func (s *TemplateService) ListTemplates(ctx context.Context, roomID string, includeInactive bool) ([]Template, error) {
	templates, err := s.templates.ListTemplates(ctx, strings.TrimSpace(roomID), includeInactive)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return templates, nil
}

// CreateTemplateException cancels one week's occurrence of a template. Only
// uniqueness per (template, week) is enforced; no conflict logic runs.
func (s *TemplateService) CreateTemplateException(ctx context.Context, principal Principal, templateID string, weekStart time.Time, reason string) (TemplateException, error) {
	logger := serviceLogger(ctx, s.logger, "template", "create_template_exception", "template_id", templateID)

	tpl, err := s.getTemplate(ctx, templateID)
	if err != nil {
		logOutcome(ctx, logger, "exception rejected", err)
		return TemplateException{}, err
	}
	if err := s.authorizeException(ctx, principal, tpl); err != nil {
		logOutcome(ctx, logger, "exception rejected", err)
		return TemplateException{}, err
	}
	if weekStart.IsZero() || !s.engine.IsWeekStart(weekStart) {
		err := newValidationError(ReasonInvalidInput, "week_start", "week start must be a Monday")
		logOutcome(ctx, logger, "exception rejected", err)
		return TemplateException{}, err
	}

	exception := TemplateException{
		ID:         s.idGenerator(),
		TemplateID: tpl.ID,
		WeekStart:  s.engine.WeekStart(weekStart),
		Reason:     strings.TrimSpace(reason),
		CreatedBy:  principal.UserID,
		CreatedAt:  s.now(),
	}
	if err := s.exceptions.CreateException(ctx, exception); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "exception insert failed", mapped)
		return TemplateException{}, mapped
	}
	logger.InfoContext(ctx, "template exception created", "week_start", recurrence.CivilDate(exception.WeekStart))
	return exception, nil
}

// CancelMaterializedOccurrence cancels a booking produced by the
// materialization job and records an exception resolving it, so the week is
// shown as cancelled and never materialized again.
func (s *TemplateService) CancelMaterializedOccurrence(ctx context.Context, principal Principal, bookingID, reason string) (TemplateException, error) {
	logger := serviceLogger(ctx, s.logger, "template", "cancel_materialized_occurrence", "booking_id", bookingID)
	if !principal.IsAdmin {
		logOutcome(ctx, logger, "occurrence cancellation rejected", ErrUnauthorized)
		return TemplateException{}, ErrUnauthorized
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return TemplateException{}, mapRepoError(err)
	}
	if !booking.Materialized() || booking.GeneratedForWeek.IsZero() {
		return TemplateException{}, newValidationError(ReasonInvalidInput, "booking_id", "booking was not generated from a template")
	}

	exception := TemplateException{
		ID:                s.idGenerator(),
		TemplateID:        booking.TemplateID,
		WeekStart:         booking.GeneratedForWeek,
		Reason:            strings.TrimSpace(reason),
		ResolvedBookingID: booking.ID,
		CreatedBy:         principal.UserID,
		CreatedAt:         s.now(),
	}
	recorded, err := s.exceptions.ResolveMaterialized(ctx, exception, exception.CreatedAt)
	if err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "occurrence cancellation failed", mapped)
		return TemplateException{}, mapped
	}
	if !recorded {
		logger.InfoContext(ctx, "occurrence already cancelled, cancelling booking only")
	}
	logger.InfoContext(ctx, "materialized occurrence cancelled", "template_id", booking.TemplateID)
	return exception, nil
}

// ListExceptions returns every exception recorded for a template.
func (s *TemplateService) ListExceptions(ctx context.Context, templateID string) ([]TemplateException, error) {
	exceptions, err := s.exceptions.ListExceptions(ctx, templateID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return exceptions, nil
}

// authorizeException allows administrators and the teacher the template's
// name resolves to.
func (s *TemplateService) authorizeException(ctx context.Context, principal Principal, tpl Template) error {
	if principal.IsAdmin {
		return nil
	}
	if principal.UserID == "" || s.profiles == nil {
		return ErrUnauthorized
	}
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return err
	}
	if id, ok := NewOwnerIndex(profiles).Lookup(tpl.TeacherName); ok && id == principal.UserID {
		return nil
	}
	return ErrUnauthorized
}

func (s *TemplateService) validateTemplate(ctx context.Context, tpl Template) error {
	vErr := &ValidationError{}
	if tpl.RoomID == "" {
		vErr.add("room_id", "room is required")
	}
	if tpl.Title == "" {
		vErr.add("title", "title is required")
	}
	if tpl.TeacherName == "" {
		vErr.add("teacher_name", "teacher name is required")
	}

	err := s.engine.Validate(toRecurrenceTemplate(tpl))
	if errors.Is(err, recurrence.ErrInvalidRepeatInterval) {
		vErr.add("repeat_interval_weeks", "repeat interval must be at least 1")
	}
	if errors.Is(err, recurrence.ErrInvalidWeekday) {
		vErr.add("weekday", "weekday must be between 0 (Monday) and 6 (Sunday)")
	}
	if errors.Is(err, recurrence.ErrInvalidStartTime) {
		vErr.add("start_time", "start time must fall within the day")
	}
	if errors.Is(err, recurrence.ErrInvalidDuration) {
		vErr.add("duration_minutes", "duration must be positive")
	}
	if errors.Is(err, recurrence.ErrEffectiveFromNotMonday) {
		vErr.add("effective_from", "effective date must be a Monday")
	}
	if vErr.HasErrors() {
		return vErr
	}

	if s.rooms != nil {
		if _, err := s.rooms.GetRoom(ctx, tpl.RoomID); err != nil {
			if isNotFound(err) {
				return newValidationError(ReasonInvalidInput, "room_id", "room does not exist")
			}
			return err
		}
	}
	return nil
}

func (s *TemplateService) getTemplate(ctx context.Context, templateID string) (Template, error) {
	if strings.TrimSpace(templateID) == "" {
		return Template{}, ErrNotFound
	}
	tpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return Template{}, mapRepoError(err)
	}
	return tpl, nil
}
