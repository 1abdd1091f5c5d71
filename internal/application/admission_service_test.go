package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/scheduler"
)

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected rejection %q, got success", want)
	}
	got, ok := RejectionReason(err)
	if !ok {
		t.Fatalf("expected rejection %q, got %v", want, err)
	}
	if got != want {
		t.Fatalf("expected reason %q, got %q (%v)", want, got, err)
	}
}

func TestAdmissionService_TryBook_OperatingHours(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		startHour  int
		startMin   int
		endHour    int
		endMin     int
		wantReason Reason
	}{
		{name: "before opening", startHour: 6, endHour: 7, wantReason: ReasonOutsideOperatingHours},
		{name: "after closing", startHour: 22, endHour: 23, wantReason: ReasonOutsideOperatingHours},
		{name: "starts one minute early", startHour: 7, startMin: 29, endHour: 8, wantReason: ReasonOutsideOperatingHours},
		{name: "first slot of the day", startHour: 7, startMin: 30, endHour: 8, endMin: 30},
		{name: "last slot of the day", startHour: 21, startMin: 30, endHour: 22, endMin: 30},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, DefaultPolicy())
			_, err := h.admission.TryBook(context.Background(), BookingRequest{
				Principal: Principal{UserID: "owner-1"},
				RoomID:    "room-a",
				Title:     "Study group",
				Start:     at(3, tc.startHour, tc.startMin),
				End:       at(3, tc.endHour, tc.endMin),
			})
			if tc.wantReason == "" {
				if err != nil {
					t.Fatalf("expected booking to be admitted, got %v", err)
				}
				return
			}
			requireReason(t, err, tc.wantReason)
			if len(h.store.created) != 0 {
				t.Fatalf("expected nothing persisted on rejection, got %d rows", len(h.store.created))
			}
		})
	}
}

func TestAdmissionService_TryBook_RejectsOneMinuteRoomOverlap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addBooking(Booking{ID: "existing", RoomID: "room-a", OwnerID: "teacher-1", Title: "Lecture", Start: at(3, 10, 0), End: at(3, 11, 0), Status: BookingStatusConfirmed})

	_, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-a",
		Title:     "Overlap",
		Start:     at(3, 10, 59),
		End:       at(3, 12, 0),
	})

	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflictErr.Party != scheduler.ConflictTypeRoom || conflictErr.BookingID != "existing" {
		t.Fatalf("unexpected conflict: %+v", conflictErr)
	}
	requireReason(t, err, ReasonRoomConflict)

	if _, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-a",
		Title:     "Adjacent",
		Start:     at(3, 11, 0),
		End:       at(3, 12, 0),
	}); err != nil {
		t.Fatalf("expected adjacent booking to be admitted, got %v", err)
	}
}

func TestAdmissionService_TryBook_RejectsOwnerConflictAcrossRooms(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addBooking(Booking{ID: "mine", RoomID: "room-a", OwnerID: "owner-1", Title: "Seminar", Start: at(3, 10, 0), End: at(3, 11, 0), Status: BookingStatusConfirmed})

	_, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-b",
		Title:     "Double booked",
		Start:     at(3, 10, 30),
		End:       at(3, 11, 30),
	})

	var conflictErr *ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflictErr.Party != scheduler.ConflictTypeOwner {
		t.Fatalf("expected owner conflict, got %+v", conflictErr)
	}
	requireReason(t, err, ReasonOwnerConflict)
}

func TestAdmissionService_TryBook_ValidationOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.now = at(10, 12, 0)

	// Outside hours and in the past: operating hours win.
	_, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-a",
		Title:     "Early",
		Start:     at(9, 6, 0),
		End:       at(9, 7, 0),
	})
	requireReason(t, err, ReasonOutsideOperatingHours)

	_, err = h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-a",
		Title:     "Too late",
		Start:     at(10, 10, 0),
		End:       at(10, 11, 0),
	})
	requireReason(t, err, ReasonStartInPast)

	_, err = h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-a",
		Title:     "Backwards",
		Start:     at(11, 11, 0),
		End:       at(11, 10, 0),
	})
	requireReason(t, err, ReasonInvalidInterval)
}

func TestAdmissionService_TryBook_WeekendPolicy(t *testing.T) {
	t.Parallel()

	saturday := BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-a",
		Title:     "Weekend workshop",
		Start:     at(6, 10, 0),
		End:       at(6, 12, 0),
	}

	allowed := newHarness(t, DefaultPolicy())
	if _, err := allowed.admission.TryBook(context.Background(), saturday); err != nil {
		t.Fatalf("expected weekend booking to be admitted by default, got %v", err)
	}

	policy := DefaultPolicy()
	policy.AllowWeekendBookings = false
	blocked := newHarness(t, policy)
	_, err := blocked.admission.TryBook(context.Background(), saturday)
	requireReason(t, err, ReasonWeekendNotAllowed)
}

func TestAdmissionService_TryBook_RoomState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addRoom(Room{ID: "room-closed", Name: "Closed"})

	_, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-closed",
		Title:     "Nope",
		Start:     at(3, 10, 0),
		End:       at(3, 11, 0),
	})
	requireReason(t, err, ReasonRoomInactive)

	_, err = h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-missing",
		Title:     "Nope",
		Start:     at(3, 10, 0),
		End:       at(3, 11, 0),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["room_id"]; !ok {
		t.Fatalf("expected room_id field error, got %v", vErr.FieldErrors)
	}
}

func TestAdmissionService_TryBook_Authorization(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	req := BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-a",
		OwnerID:   "teacher-1",
		Title:     "On behalf",
		Start:     at(3, 10, 0),
		End:       at(3, 11, 0),
	}
	if _, err := h.admission.TryBook(context.Background(), req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	req.Principal = Principal{UserID: "admin-1", IsAdmin: true}
	booking, err := h.admission.TryBook(context.Background(), req)
	if err != nil {
		t.Fatalf("expected admin booking on behalf to succeed, got %v", err)
	}
	if booking.OwnerID != "teacher-1" {
		t.Fatalf("expected owner teacher-1, got %q", booking.OwnerID)
	}
}

func TestAdmissionService_TryBook_ApprovalFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addRoom(Room{ID: "room-hall", Name: "Hall", RequiresApproval: true, Active: true})

	booking, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-hall",
		Title:     "Assembly",
		Start:     at(4, 9, 0),
		End:       at(4, 10, 0),
	})
	if err != nil {
		t.Fatalf("TryBook returned error: %v", err)
	}
	if booking.Status != BookingStatusPending {
		t.Fatalf("expected pending status, got %q", booking.Status)
	}
	if len(h.notifier.summaries) != 0 {
		t.Fatalf("expected no notification for pending booking")
	}

	// Pending requests do not block each other.
	if _, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "teacher-1"},
		RoomID:    "room-hall",
		Title:     "Rehearsal",
		Start:     at(4, 9, 30),
		End:       at(4, 10, 30),
	}); err != nil {
		t.Fatalf("expected second pending request to be admitted, got %v", err)
	}

	if _, err := h.admission.ApproveBooking(context.Background(), Principal{UserID: "owner-1"}, booking.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin approval, got %v", err)
	}

	approved, err := h.admission.ApproveBooking(context.Background(), Principal{UserID: "admin-1", IsAdmin: true}, booking.ID)
	if err != nil {
		t.Fatalf("ApproveBooking returned error: %v", err)
	}
	if approved.Status != BookingStatusConfirmed {
		t.Fatalf("expected confirmed status, got %q", approved.Status)
	}
	if len(h.notifier.summaries) != 1 || h.notifier.summaries[0].BookingID != booking.ID {
		t.Fatalf("expected one notification for the approved booking, got %+v", h.notifier.summaries)
	}

	if _, err := h.admission.ApproveBooking(context.Background(), Principal{UserID: "admin-1", IsAdmin: true}, booking.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second approval, got %v", err)
	}
}

func TestAdmissionService_ApproveBooking_RechecksConflicts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addRoom(Room{ID: "room-hall", Name: "Hall", RequiresApproval: true, Active: true})
	h.store.addBooking(Booking{ID: "pending-1", RoomID: "room-hall", OwnerID: "owner-1", Title: "Late", Start: at(4, 9, 0), End: at(4, 10, 0), Status: BookingStatusPending})
	h.store.addBooking(Booking{ID: "confirmed-1", RoomID: "room-hall", OwnerID: "teacher-1", Title: "First", Start: at(4, 9, 30), End: at(4, 10, 30), Status: BookingStatusConfirmed})

	_, err := h.admission.ApproveBooking(context.Background(), Principal{UserID: "admin-1", IsAdmin: true}, "pending-1")
	requireReason(t, err, ReasonRoomConflict)

	denied, err := h.admission.DenyBooking(context.Background(), Principal{UserID: "admin-1", IsAdmin: true}, "pending-1")
	if err != nil {
		t.Fatalf("DenyBooking returned error: %v", err)
	}
	if denied.Status != BookingStatusDenied {
		t.Fatalf("expected denied status, got %q", denied.Status)
	}
}

func TestAdmissionService_TryBook_NotifiesWithoutFailing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.notifier.err = errors.New("queue full")

	booking, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "owner-1"},
		RoomID:    "room-a",
		Title:     "Club",
		Start:     at(3, 15, 0),
		End:       at(3, 16, 0),
	})
	if err != nil {
		t.Fatalf("expected notification failure to be ignored, got %v", err)
	}
	if booking.Status != BookingStatusConfirmed {
		t.Fatalf("expected confirmed status, got %q", booking.Status)
	}
	if _, ok := h.store.bookings[booking.ID]; !ok {
		t.Fatalf("expected booking to stay persisted")
	}
	if len(h.notifier.recipients) != 1 || h.notifier.recipients[0][0] != "owner-1" {
		t.Fatalf("expected owner to be notified, got %v", h.notifier.recipients)
	}
}

func TestAdmissionService_TryBook_MapsLostRace(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		storeErr   error
		wantReason Reason
	}{
		{name: "room", storeErr: persistence.ErrRoomOverlap, wantReason: ReasonRoomConflict},
		{name: "owner", storeErr: persistence.ErrOwnerOverlap, wantReason: ReasonOwnerConflict},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, DefaultPolicy())
			h.store.createErr = tc.storeErr

			_, err := h.admission.TryBook(context.Background(), BookingRequest{
				Principal: Principal{UserID: "owner-1"},
				RoomID:    "room-a",
				Title:     "Contended",
				Start:     at(3, 10, 0),
				End:       at(3, 11, 0),
			})

			var raceErr *RaceLostError
			if !errors.As(err, &raceErr) {
				t.Fatalf("expected RaceLostError, got %v", err)
			}
			var conflictErr *ConflictError
			if !errors.As(err, &conflictErr) {
				t.Fatalf("expected RaceLostError to unwrap to ConflictError")
			}
			requireReason(t, err, tc.wantReason)
			if kind := ErrorKind(err); kind != "race_lost" {
				t.Fatalf("expected race_lost kind, got %q", kind)
			}
			if len(h.notifier.summaries) != 0 {
				t.Fatalf("expected no notification after a lost race")
			}
		})
	}
}

func TestAdmissionService_UpdateBooking_EditSemantics(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addBooking(Booking{ID: "b-1", RoomID: "room-a", OwnerID: "owner-1", Title: "Lab", Start: at(10, 10, 0), End: at(10, 11, 0), Status: BookingStatusConfirmed})
	h.now = at(10, 10, 30)
	goggles := "bring goggles"

	updated, err := h.admission.UpdateBooking(context.Background(), BookingUpdate{
		Principal: Principal{UserID: "owner-1"},
		BookingID: "b-1",
		Title:     "Lab (room swap notes)",
		Notes:     &goggles,
	})
	if err != nil {
		t.Fatalf("expected metadata edit of started booking to succeed, got %v", err)
	}
	if updated.Title != "Lab (room swap notes)" || !updated.Start.Equal(at(10, 10, 0)) {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	_, err = h.admission.UpdateBooking(context.Background(), BookingUpdate{
		Principal: Principal{UserID: "owner-1"},
		BookingID: "b-1",
		Start:     at(10, 10, 15),
		End:       at(10, 11, 15),
	})
	requireReason(t, err, ReasonStartInPast)

	h.now = at(8, 9, 0)
	moved, err := h.admission.UpdateBooking(context.Background(), BookingUpdate{
		Principal: Principal{UserID: "owner-1"},
		BookingID: "b-1",
		Start:     at(10, 10, 30),
		End:       at(10, 11, 30),
	})
	if err != nil {
		t.Fatalf("expected move overlapping own prior interval to succeed, got %v", err)
	}
	if !moved.Start.Equal(at(10, 10, 30)) {
		t.Fatalf("expected new start, got %v", moved.Start)
	}
	if moved.Notes != goggles || moved.Title != "Lab (room swap notes)" {
		t.Fatalf("omitted fields must keep their values, got %+v", moved)
	}

	cleared := ""
	wiped, err := h.admission.UpdateBooking(context.Background(), BookingUpdate{
		Principal: Principal{UserID: "owner-1"},
		BookingID: "b-1",
		Notes:     &cleared,
	})
	if err != nil {
		t.Fatalf("expected notes edit to succeed, got %v", err)
	}
	if wiped.Notes != "" || !wiped.Start.Equal(at(10, 10, 30)) {
		t.Fatalf("explicit empty notes must clear them, got %+v", wiped)
	}

	if _, err := h.admission.UpdateBooking(context.Background(), BookingUpdate{
		Principal: Principal{UserID: "teacher-1"},
		BookingID: "b-1",
		Title:     "Hijack",
	}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign edit, got %v", err)
	}
}

func TestAdmissionService_CancelAndDelete(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultPolicy())
	h.store.addBooking(Booking{ID: "b-1", RoomID: "room-a", OwnerID: "owner-1", Title: "Lab", Start: at(10, 10, 0), End: at(10, 11, 0), Status: BookingStatusConfirmed})

	cancelled, err := h.admission.CancelBooking(context.Background(), Principal{UserID: "owner-1"}, "b-1")
	if err != nil {
		t.Fatalf("CancelBooking returned error: %v", err)
	}
	if cancelled.Status != BookingStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", cancelled.Status)
	}

	// A cancelled booking frees the slot.
	if _, err := h.admission.TryBook(context.Background(), BookingRequest{
		Principal: Principal{UserID: "teacher-1"},
		RoomID:    "room-a",
		Title:     "Replacement",
		Start:     at(10, 10, 0),
		End:       at(10, 11, 0),
	}); err != nil {
		t.Fatalf("expected freed slot to be bookable, got %v", err)
	}

	if _, err := h.admission.CancelBooking(context.Background(), Principal{UserID: "owner-1"}, "b-1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := h.admission.DeleteBooking(context.Background(), Principal{UserID: "owner-1"}, "b-1"); err != nil {
		t.Fatalf("DeleteBooking returned error: %v", err)
	}
	if err := h.admission.DeleteBooking(context.Background(), Principal{UserID: "owner-1"}, "b-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
