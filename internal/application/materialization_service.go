package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
)

// MaterializationReport summarizes one run of the materialization job.
type MaterializationReport struct {
	Weeks               []time.Time
	Created             int
	AlreadyMaterialized int
	Cancelled           int
	NotEligible         int
	// Failures lists occurrences skipped because of inconsistent data.
	Failures []*DataIntegrityError
	// Errors lists occurrences skipped because storage failed unexpectedly.
	Errors []error
}

// MaterializationService converts eligible, non-cancelled template
// occurrences into confirmed bookings. Re-running it over the same window is a
// no-op thanks to the (template, week) unique key.
type MaterializationService struct {
	templates   TemplateRepository
	exceptions  ExceptionRepository
	bookings    BookingRepository
	profiles    ProfileDirectory
	timetable   *TimetableService
	policy      Policy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMaterializationService wires dependencies for the materialization job.
func NewMaterializationService(templates TemplateRepository, exceptions ExceptionRepository, bookings BookingRepository, profiles ProfileDirectory, timetable *TimetableService, policy Policy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MaterializationService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MaterializationService{
		templates:   templates,
		exceptions:  exceptions,
		bookings:    bookings,
		profiles:    profiles,
		timetable:   timetable,
		policy:      policy.normalized(),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// Run materializes the rolling window starting with the current week.
func (s *MaterializationService) Run(ctx context.Context) (MaterializationReport, error) {
	return s.RunWindow(ctx, s.now(), s.policy.LookaheadWeeks)
}

// RunWindow materializes weeks consecutive weeks starting with the week of
// from. Per-occurrence problems are reported, never returned; only failures to
// load the inputs abort the run.
func (s *MaterializationService) RunWindow(ctx context.Context, from time.Time, weeks int) (MaterializationReport, error) {
	if s == nil {
		return MaterializationReport{}, fmt.Errorf("MaterializationService is nil")
	}
	engine := s.timetable.Engine()
	report := MaterializationReport{Weeks: engine.Weeks(from, weeks)}
	logger := serviceLogger(ctx, s.logger, "materialization", "run", "weeks", len(report.Weeks))

	templates, err := s.templates.ListTemplates(ctx, "", false)
	if err != nil {
		logOutcome(ctx, logger, "failed to load templates", err)
		return report, mapRepoError(err)
	}
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		logOutcome(ctx, logger, "failed to load profiles", err)
		return report, mapRepoError(err)
	}
	owners := NewOwnerIndex(profiles)

	ids := make([]string, 0, len(templates))
	for _, tpl := range templates {
		ids = append(ids, tpl.ID)
	}

	for _, week := range report.Weeks {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var exceptions recurrence.ExceptionSet
		if len(ids) > 0 {
			rows, err := s.exceptions.ListExceptionsForWeek(ctx, ids, week)
			if err != nil {
				logOutcome(ctx, logger, "failed to load exceptions", err)
				return report, mapRepoError(err)
			}
			converted := make([]recurrence.Exception, 0, len(rows))
			for _, row := range rows {
				converted = append(converted, toRecurrenceException(row))
			}
			exceptions = recurrence.NewExceptionSet(converted)
		}

		for _, tpl := range templates {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			s.materialize(ctx, logger, engine, owners, exceptions, tpl, week, &report)
		}
	}

	logger.InfoContext(ctx, "materialization finished",
		"created", report.Created,
		"already_materialized", report.AlreadyMaterialized,
		"cancelled", report.Cancelled,
		"not_eligible", report.NotEligible,
		"failures", len(report.Failures),
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *MaterializationService) materialize(ctx context.Context, logger *slog.Logger, engine *recurrence.Engine, owners *OwnerIndex, exceptions recurrence.ExceptionSet, tpl Template, week time.Time, report *MaterializationReport) {
	occ, ok := engine.Resolve(toRecurrenceTemplate(tpl), week)
	if !ok {
		report.NotEligible++
		return
	}
	occ = exceptions.Overlay(occ)
	if occ.Cancelled {
		report.Cancelled++
		return
	}

	weekLog := logger.With("template_id", tpl.ID, "week_start", recurrence.CivilDate(week))

	if _, exists, err := s.bookings.FindMaterialized(ctx, tpl.ID, occ.WeekStart); err != nil {
		s.recordError(ctx, weekLog, report, err)
		return
	} else if exists {
		report.AlreadyMaterialized++
		return
	}

	ownerID, source, ok := owners.Resolve(tpl, s.policy.UnmatchedOwnerPolicy)
	if !ok {
		detail := fmt.Sprintf("no profile matches teacher %q", tpl.TeacherName)
		if owners.Ambiguous(tpl.TeacherName) {
			detail = fmt.Sprintf("several profiles match teacher %q", tpl.TeacherName)
		}
		s.recordFailure(ctx, weekLog, report, &DataIntegrityError{
			TemplateID: tpl.ID,
			WeekStart:  occ.WeekStart,
			Reason:     ReasonOwnerUnresolved,
			Detail:     detail,
		})
		return
	}

	candidate := scheduler.Candidate{
		RoomID:            tpl.RoomID,
		OwnerID:           ownerID,
		Interval:          occ.Interval,
		ExcludeTemplateID: tpl.ID,
		ExcludeWeek:       occ.WeekStart,
	}
	if err := s.timetable.checkConflicts(ctx, candidate); err != nil {
		var conflictErr *ConflictError
		if !errors.As(err, &conflictErr) {
			s.recordError(ctx, weekLog, report, err)
			return
		}
		s.recordFailure(ctx, weekLog, report, &DataIntegrityError{
			TemplateID: tpl.ID,
			WeekStart:  occ.WeekStart,
			Reason:     ReasonTemplateConflict,
			Detail:     conflictErr.Error(),
			Err:        conflictErr,
		})
		return
	}

	now := s.now()
	booking := Booking{
		ID:               s.idGenerator(),
		RoomID:           tpl.RoomID,
		OwnerID:          ownerID,
		Title:            tpl.Title,
		Notes:            tpl.Notes,
		Start:            occ.Interval.Start,
		End:              occ.Interval.End,
		Status:           BookingStatusConfirmed,
		TemplateID:       tpl.ID,
		GeneratedForWeek: occ.WeekStart,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	inserted, err := s.bookings.InsertMaterialized(ctx, booking)
	if err != nil {
		mapped := mapRepoError(err)
		var raceErr *RaceLostError
		if errors.As(mapped, &raceErr) {
			s.recordFailure(ctx, weekLog, report, &DataIntegrityError{
				TemplateID: tpl.ID,
				WeekStart:  occ.WeekStart,
				Reason:     ReasonTemplateConflict,
				Detail:     raceErr.Error(),
				Err:        raceErr,
			})
			return
		}
		s.recordError(ctx, weekLog, report, mapped)
		return
	}
	if !inserted {
		report.AlreadyMaterialized++
		return
	}

	report.Created++
	weekLog.InfoContext(ctx, "occurrence materialized", "booking_id", booking.ID, "owner_id", ownerID, "owner_source", source)
}

func (s *MaterializationService) recordFailure(ctx context.Context, logger *slog.Logger, report *MaterializationReport, failure *DataIntegrityError) {
	report.Failures = append(report.Failures, failure)
	logOutcome(ctx, logger, "occurrence skipped", failure)
}

func (s *MaterializationService) recordError(ctx context.Context, logger *slog.Logger, report *MaterializationReport, err error) {
	report.Errors = append(report.Errors, err)
	logOutcome(ctx, logger, "occurrence failed", err)
}
