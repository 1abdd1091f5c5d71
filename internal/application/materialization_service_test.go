package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/timetable"
)

func TestMaterializationService_RunWindow_IsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addTemplate(biweeklyWednesday())
	ctx := context.Background()

	report, err := h.materializer.RunWindow(ctx, monday(15), 2)
	if err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}
	if report.Created != 1 || report.NotEligible != 1 || len(report.Failures) != 0 {
		t.Fatalf("unexpected first report: %+v", report)
	}

	created := h.store.created[0]
	if created.Status != BookingStatusConfirmed || created.OwnerID != "teacher-1" || created.TemplateID != "tpl-wed" {
		t.Fatalf("unexpected materialized booking: %+v", created)
	}
	if !created.GeneratedForWeek.Equal(monday(15)) || !created.Start.Equal(at(17, 8, 30)) {
		t.Fatalf("unexpected materialized interval: %+v", created)
	}

	for i := 0; i < 3; i++ {
		again, err := h.materializer.RunWindow(ctx, monday(15), 2)
		if err != nil {
			t.Fatalf("RunWindow returned error: %v", err)
		}
		if again.Created != 0 || again.AlreadyMaterialized != 1 {
			t.Fatalf("expected rerun to be a no-op, got %+v", again)
		}
	}
	if n := h.store.countMaterialized("tpl-wed", monday(15)); n != 1 {
		t.Fatalf("expected exactly one materialized booking, got %d", n)
	}

	slots, err := h.timetable.GetEffectiveTimetable(ctx, "room-a", monday(15))
	if err != nil {
		t.Fatalf("GetEffectiveTimetable returned error: %v", err)
	}
	if len(slots) != 1 || slots[0].Kind != timetable.KindBooking || slots[0].TemplateID != "tpl-wed" {
		t.Fatalf("expected the materialized booking to replace the template slot, got %+v", slots)
	}
}

func TestMaterializationService_Run_UsesCurrentWindow(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()
	policy.LookaheadWeeks = 3
	h := newHarness(t, policy)
	h.now = at(17, 12, 0)
	tpl := biweeklyWednesday()
	tpl.RepeatIntervalWeeks = 1
	h.store.addTemplate(tpl)

	report, err := h.materializer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(report.Weeks) != 3 || !report.Weeks[0].Equal(monday(15)) {
		t.Fatalf("unexpected window: %v", report.Weeks)
	}
	if report.Created != 3 {
		t.Fatalf("expected three bookings, got %+v", report)
	}
}

func TestMaterializationService_SkipsCancelledOccurrences(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addTemplate(biweeklyWednesday())
	ctx := context.Background()

	if _, err := h.templates.CreateTemplateException(ctx, Principal{UserID: "admin-1", IsAdmin: true}, "tpl-wed", monday(15), "exam week"); err != nil {
		t.Fatalf("CreateTemplateException returned error: %v", err)
	}

	report, err := h.materializer.RunWindow(ctx, monday(15), 1)
	if err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}
	if report.Cancelled != 1 || report.Created != 0 {
		t.Fatalf("expected cancelled occurrence to be skipped, got %+v", report)
	}
}

func TestMaterializationService_OwnerPolicies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		policy    UnmatchedOwnerPolicy
		createdBy string
		wantOwner string
	}{
		{name: "creator fallback", policy: OwnerPolicyAssignToCreator, createdBy: "owner-1", wantOwner: "owner-1"},
		{name: "creator unknown", policy: OwnerPolicyAssignToCreator, createdBy: "ghost"},
		{name: "admin prefers creator", policy: OwnerPolicyAssignToAdmin, createdBy: "owner-1", wantOwner: "owner-1"},
		{name: "admin fallback", policy: OwnerPolicyAssignToAdmin, createdBy: "ghost", wantOwner: "admin-1"},
		{name: "skip", policy: OwnerPolicySkip, createdBy: "owner-1"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			policy := DefaultPolicy()
			policy.UnmatchedOwnerPolicy = tc.policy
			h := newHarness(t, policy)
			tpl := biweeklyWednesday()
			tpl.TeacherName = "Substitute Teacher"
			tpl.CreatedBy = tc.createdBy
			h.store.addTemplate(tpl)

			report, err := h.materializer.RunWindow(context.Background(), monday(15), 1)
			if err != nil {
				t.Fatalf("RunWindow returned error: %v", err)
			}

			if tc.wantOwner == "" {
				if report.Created != 0 || len(report.Failures) != 1 {
					t.Fatalf("expected one unresolved owner failure, got %+v", report)
				}
				if report.Failures[0].Reason != ReasonOwnerUnresolved {
					t.Fatalf("expected owner_unresolved, got %q", report.Failures[0].Reason)
				}
				return
			}
			if report.Created != 1 {
				t.Fatalf("expected one booking, got %+v", report)
			}
			if got := h.store.created[0].OwnerID; got != tc.wantOwner {
				t.Fatalf("expected owner %q, got %q", tc.wantOwner, got)
			}
		})
	}
}

func TestMaterializationService_AmbiguousTeacherNameMatchesNobody(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()
	policy.UnmatchedOwnerPolicy = OwnerPolicySkip
	h := newHarness(t, policy)
	h.store.profiles = append(h.store.profiles, UserProfile{ID: "teacher-2", FullName: "GRACE HOPPER"})
	h.store.addTemplate(biweeklyWednesday())

	report, err := h.materializer.RunWindow(context.Background(), monday(15), 1)
	if err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].Reason != ReasonOwnerUnresolved {
		t.Fatalf("expected ambiguous name to be unresolved, got %+v", report)
	}
}

func TestMaterializationService_SurfacesTemplateConflicts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	first := biweeklyWednesday()
	first.ID = "tpl-a"
	first.RepeatIntervalWeeks = 1
	second := first
	second.ID = "tpl-b"
	second.TeacherName = "Olive Owner"
	second.StartMinute = 9 * 60
	third := first
	third.ID = "tpl-c"
	third.TeacherName = "Olive Owner"
	third.Weekday = 3
	h.store.addTemplate(first)
	h.store.addTemplate(second)
	h.store.addTemplate(third)

	report, err := h.materializer.RunWindow(context.Background(), monday(15), 1)
	if err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}
	if report.Created != 1 || h.store.created[0].TemplateID != "tpl-c" {
		t.Fatalf("expected only the non-overlapping template to materialize, got %+v", report)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected both overlapping templates to be reported, got %+v", report.Failures)
	}
	for _, failure := range report.Failures {
		if failure.Reason != ReasonTemplateConflict {
			t.Fatalf("expected template_conflict, got %q", failure.Reason)
		}
		if kind := ErrorKind(failure); kind != "data_integrity" {
			t.Fatalf("expected data_integrity kind, got %q", kind)
		}
		var conflictErr *ConflictError
		if !errors.As(failure, &conflictErr) {
			t.Fatalf("expected failure to wrap the conflict")
		}
	}
}

func TestMaterializationService_ReportsConflictWithAdHocBooking(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addTemplate(biweeklyWednesday())
	// The teacher is busy elsewhere at the template's time.
	h.store.addBooking(Booking{ID: "b-1", RoomID: "room-b", OwnerID: "teacher-1", Title: "Parent meeting", Start: at(17, 9, 0), End: at(17, 9, 45), Status: BookingStatusConfirmed})

	report, err := h.materializer.RunWindow(context.Background(), monday(15), 1)
	if err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}
	if len(report.Failures) != 1 || report.Created != 0 {
		t.Fatalf("expected one failure, got %+v", report)
	}
	failure := report.Failures[0]
	if failure.TemplateID != "tpl-wed" || !failure.WeekStart.Equal(monday(15)) {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	var conflictErr *ConflictError
	if !errors.As(failure, &conflictErr) || conflictErr.Reason() != ReasonOwnerConflict {
		t.Fatalf("expected owner conflict cause, got %v", failure.Err)
	}
}

func TestMaterializationService_StorageOverlapIsReported(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addTemplate(biweeklyWednesday())
	h.store.insertErr = persistence.ErrRoomOverlap

	report, err := h.materializer.RunWindow(context.Background(), monday(15), 1)
	if err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].Reason != ReasonTemplateConflict {
		t.Fatalf("expected storage overlap to be reported as template conflict, got %+v", report)
	}
	var raceErr *RaceLostError
	if !errors.As(report.Failures[0], &raceErr) {
		t.Fatalf("expected failure to wrap RaceLostError")
	}
}

func TestMaterializationService_UnexpectedErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addTemplate(biweeklyWednesday())
	h.store.insertErr = errStorageDown

	report, err := h.materializer.RunWindow(context.Background(), monday(15), 1)
	if err != nil {
		t.Fatalf("RunWindow returned error: %v", err)
	}
	if len(report.Errors) != 1 || !errors.Is(report.Errors[0], errStorageDown) {
		t.Fatalf("expected storage error in report, got %+v", report)
	}

	h.store.profilesErr = errStorageDown
	if _, err := h.materializer.RunWindow(context.Background(), monday(15), 1); !errors.Is(err, errStorageDown) {
		t.Fatalf("expected profile load failure to abort the run, got %v", err)
	}
}
