package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/room-timetable/internal/persistence"
)

var baseTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	storage, err := Open(ctx, DefaultConfig(filepath.Join(t.TempDir(), "timetable.db")), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	if err := storage.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	seedRoom(t, storage, "room-a")
	seedRoom(t, storage, "room-b")
	return storage
}

func seedRoom(t *testing.T, storage *Storage, id string) {
	t.Helper()
	room := persistence.Room{ID: id, Name: "Room " + id, Capacity: 30, Active: true, CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := storage.Rooms.UpsertRoom(context.Background(), room); err != nil {
		t.Fatalf("UpsertRoom failed: %v", err)
	}
}

func seedTemplate(t *testing.T, storage *Storage, id string) {
	t.Helper()
	template := persistence.Template{
		ID:                  id,
		RoomID:              "room-a",
		TeacherName:         "Grace Hopper",
		Title:               "Algebra",
		Weekday:             2,
		StartMinute:         510,
		DurationMinutes:     60,
		RepeatIntervalWeeks: 1,
		EffectiveFrom:       "2024-01-01",
		Active:              true,
		CreatedAt:           baseTime,
		UpdatedAt:           baseTime,
	}
	if err := storage.Templates.CreateTemplate(context.Background(), template); err != nil {
		t.Fatalf("CreateTemplate failed: %v", err)
	}
}

func confirmed(id, room, owner string, startHour, endHour int) persistence.Booking {
	return persistence.Booking{
		ID:        id,
		RoomID:    room,
		OwnerID:   owner,
		Title:     "Booking " + id,
		Start:     baseTime.Add(time.Duration(startHour) * time.Hour),
		End:       baseTime.Add(time.Duration(endHour) * time.Hour),
		Status:    "confirmed",
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func materialized(id, templateID, week, owner string, startHour, endHour int) persistence.Booking {
	booking := confirmed(id, "room-a", owner, startHour, endHour)
	booking.TemplateID = &templateID
	booking.GeneratedForWeek = &week
	return booking
}

func TestStorage_MigrateIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if err := storage.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestConfig_DSN(t *testing.T) {
	dsn := DefaultConfig("/tmp/x.db").DSN()
	for _, fragment := range []string{"file:/tmp/x.db?", "foreign_keys%281%29", "busy_timeout%285000%29", "journal_mode%28WAL%29", "_txlock=immediate"} {
		if !strings.Contains(dsn, fragment) {
			t.Errorf("DSN %q missing %q", dsn, fragment)
		}
	}
}

func TestRoomRepository_Upsert(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	room := persistence.Room{ID: "room-a", Name: "Lab", Capacity: 12, Type: "lab", RequiresApproval: true, Active: false, CreatedAt: baseTime, UpdatedAt: baseTime.Add(time.Hour)}
	if err := storage.Rooms.UpsertRoom(ctx, room); err != nil {
		t.Fatalf("UpsertRoom failed: %v", err)
	}

	got, err := storage.Rooms.GetRoom(ctx, "room-a")
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if got.Name != "Lab" || got.Capacity != 12 || got.Type != "lab" || !got.RequiresApproval || got.Active {
		t.Errorf("unexpected room: %+v", got)
	}
	if !got.UpdatedAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}

	rooms, err := storage.Rooms.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms failed: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}

	if _, err := storage.Rooms.GetRoom(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProfileRepository(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, profile := range []persistence.UserProfile{
		{ID: "u2", FullName: "Grace Hopper", CreatedAt: baseTime, UpdatedAt: baseTime},
		{ID: "u1", FullName: "Ada Admin", IsAdmin: true, CreatedAt: baseTime, UpdatedAt: baseTime},
	} {
		if err := storage.Profiles.UpsertProfile(ctx, profile); err != nil {
			t.Fatalf("UpsertProfile failed: %v", err)
		}
	}

	profiles, err := storage.Profiles.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(profiles) != 2 || profiles[0].ID != "u1" || !profiles[0].IsAdmin {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}

	got, err := storage.Profiles.GetProfile(ctx, "u2")
	if err != nil || got.FullName != "Grace Hopper" {
		t.Fatalf("GetProfile = %+v, %v", got, err)
	}
}

func TestBookingRepository_CreateAndGet(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	booking := confirmed("b1", "room-a", "owner-1", 9, 10)
	booking.Notes = "bring markers"
	if err := storage.Bookings.CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	got, err := storage.Bookings.GetBooking(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if !got.Start.Equal(booking.Start) || !got.End.Equal(booking.End) || got.Notes != "bring markers" {
		t.Errorf("unexpected booking: %+v", got)
	}
	if got.TemplateID != nil || got.GeneratedForWeek != nil {
		t.Errorf("ad-hoc booking has template key: %+v", got)
	}

	if err := storage.Bookings.CreateBooking(ctx, booking); !errors.Is(err, persistence.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestBookingRepository_RejectsOverlaps(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.Bookings.CreateBooking(ctx, confirmed("b1", "room-a", "owner-1", 9, 11)); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	tests := []struct {
		name    string
		booking persistence.Booking
		wantErr error
	}{
		{"same room", confirmed("b2", "room-a", "owner-2", 10, 12), persistence.ErrRoomOverlap},
		{"same owner other room", confirmed("b3", "room-b", "owner-1", 10, 12), persistence.ErrOwnerOverlap},
		{"adjacent", confirmed("b4", "room-a", "owner-1", 11, 12), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.Bookings.CreateBooking(ctx, tt.booking)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	pending := confirmed("p1", "room-a", "owner-2", 9, 11)
	pending.Status = "pending"
	if err := storage.Bookings.CreateBooking(ctx, pending); err != nil {
		t.Fatalf("pending bookings must not be checked for overlap: %v", err)
	}

	pending.Status = "confirmed"
	if err := storage.Bookings.UpdateBooking(ctx, pending); !errors.Is(err, persistence.ErrRoomOverlap) {
		t.Fatalf("confirming over an existing booking: expected ErrRoomOverlap, got %v", err)
	}
}

func TestBookingRepository_UpdateAndDelete(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	booking := confirmed("b1", "room-a", "owner-1", 9, 10)
	if err := storage.Bookings.CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	booking.End = booking.End.Add(30 * time.Minute)
	booking.Status = "cancelled"
	if err := storage.Bookings.UpdateBooking(ctx, booking); err != nil {
		t.Fatalf("UpdateBooking failed: %v", err)
	}
	got, _ := storage.Bookings.GetBooking(ctx, "b1")
	if got.Status != "cancelled" || !got.End.Equal(booking.End) {
		t.Errorf("update not persisted: %+v", got)
	}

	missing := confirmed("nope", "room-a", "owner-1", 1, 2)
	if err := storage.Bookings.UpdateBooking(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := storage.Bookings.DeleteBooking(ctx, "b1"); err != nil {
		t.Fatalf("DeleteBooking failed: %v", err)
	}
	if err := storage.Bookings.DeleteBooking(ctx, "b1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingRepository_ListConfirmed(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, booking := range []persistence.Booking{
		confirmed("b1", "room-a", "owner-1", 8, 9),
		confirmed("b2", "room-a", "owner-2", 26, 27),
		confirmed("b3", "room-b", "owner-1", 23, 25),
	} {
		if err := storage.Bookings.CreateBooking(ctx, booking); err != nil {
			t.Fatalf("CreateBooking %s failed: %v", booking.ID, err)
		}
	}
	cancelled := confirmed("b4", "room-a", "owner-1", 12, 13)
	cancelled.Status = "cancelled"
	if err := storage.Bookings.CreateBooking(ctx, cancelled); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	day := baseTime.Add(24 * time.Hour)
	byRoom, err := storage.Bookings.ListConfirmedByRoom(ctx, "room-a", baseTime, day)
	if err != nil {
		t.Fatalf("ListConfirmedByRoom failed: %v", err)
	}
	if len(byRoom) != 1 || byRoom[0].ID != "b1" {
		t.Errorf("ListConfirmedByRoom = %+v", byRoom)
	}

	// b3 starts on day one and ends on day two, so it overlaps day two.
	byOwner, err := storage.Bookings.ListConfirmedByOwner(ctx, "owner-1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListConfirmedByOwner failed: %v", err)
	}
	if len(byOwner) != 1 || byOwner[0].ID != "b3" {
		t.Errorf("ListConfirmedByOwner = %+v", byOwner)
	}
}

func TestBookingRepository_InsertMaterialized(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	seedTemplate(t, storage, "tpl-1")

	first := materialized("m1", "tpl-1", "2024-01-01", "owner-1", 8, 9)
	inserted, err := storage.Bookings.InsertMaterialized(ctx, first)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}

	// Same key, different ID: the existing row wins without tripping the
	// overlap triggers.
	second := materialized("m2", "tpl-1", "2024-01-01", "owner-1", 8, 9)
	inserted, err = storage.Bookings.InsertMaterialized(ctx, second)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if inserted {
		t.Fatal("second insert for the same key must be a no-op")
	}

	found, ok, err := storage.Bookings.FindMaterialized(ctx, "tpl-1", "2024-01-01")
	if err != nil || !ok || found.ID != "m1" {
		t.Fatalf("FindMaterialized = %+v, %v, %v", found, ok, err)
	}
	if _, ok, err := storage.Bookings.FindMaterialized(ctx, "tpl-1", "2024-01-08"); err != nil || ok {
		t.Fatalf("FindMaterialized for another week = %v, %v", ok, err)
	}

	other := materialized("m3", "tpl-1", "2024-01-08", "owner-2", 8, 9)
	other.TemplateID = nil
	if _, err := storage.Bookings.InsertMaterialized(ctx, other); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Errorf("expected ErrConstraintViolation without template key, got %v", err)
	}

	clash := materialized("m4", "tpl-1", "2024-01-08", "owner-2", 8, 9)
	clash.Start = first.Start
	clash.End = first.End
	if _, err := storage.Bookings.InsertMaterialized(ctx, clash); !errors.Is(err, persistence.ErrRoomOverlap) {
		t.Errorf("expected ErrRoomOverlap for a different key, got %v", err)
	}
}

func TestExceptionRepository(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	seedTemplate(t, storage, "tpl-1")
	seedTemplate(t, storage, "tpl-2")

	exception := persistence.TemplateException{ID: "ex-1", TemplateID: "tpl-1", WeekStart: "2024-01-15", Reason: "holiday", CreatedBy: "admin", CreatedAt: baseTime}
	if err := storage.Exceptions.CreateException(ctx, exception); err != nil {
		t.Fatalf("CreateException failed: %v", err)
	}

	exception.ID = "ex-2"
	if err := storage.Exceptions.CreateException(ctx, exception); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	orphan := persistence.TemplateException{ID: "ex-3", TemplateID: "missing", WeekStart: "2024-01-15", CreatedAt: baseTime}
	if err := storage.Exceptions.CreateException(ctx, orphan); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}

	week, err := storage.Exceptions.ListExceptionsForWeek(ctx, []string{"tpl-1", "tpl-2"}, "2024-01-15")
	if err != nil {
		t.Fatalf("ListExceptionsForWeek failed: %v", err)
	}
	if len(week) != 1 || week[0].Reason != "holiday" {
		t.Fatalf("unexpected exceptions: %+v", week)
	}

	none, err := storage.Exceptions.ListExceptionsForWeek(ctx, nil, "2024-01-15")
	if err != nil || len(none) != 0 {
		t.Fatalf("empty template list = %+v, %v", none, err)
	}

	all, err := storage.Exceptions.ListExceptions(ctx, "tpl-1")
	if err != nil || len(all) != 1 {
		t.Fatalf("ListExceptions = %+v, %v", all, err)
	}
}

func TestExceptionRepository_ResolveMaterialized(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	seedTemplate(t, storage, "tpl-1")

	if _, err := storage.Bookings.InsertMaterialized(ctx, materialized("m1", "tpl-1", "2024-01-01", "owner-1", 8, 9)); err != nil {
		t.Fatalf("InsertMaterialized failed: %v", err)
	}
	resolved := "m1"
	cancelledAt := baseTime.Add(48 * time.Hour)
	exception := persistence.TemplateException{
		ID: "ex-1", TemplateID: "tpl-1", WeekStart: "2024-01-01", Reason: "trip",
		ResolvedBookingID: &resolved, CreatedBy: "admin", CreatedAt: baseTime,
	}

	recorded, err := storage.Exceptions.ResolveMaterialized(ctx, exception, cancelledAt)
	if err != nil || !recorded {
		t.Fatalf("ResolveMaterialized = %v, %v", recorded, err)
	}
	booking, err := storage.Bookings.GetBooking(ctx, "m1")
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if booking.Status != "cancelled" || !booking.UpdatedAt.Equal(cancelledAt) {
		t.Fatalf("booking not cancelled: %+v", booking)
	}

	again := exception
	again.ID = "ex-2"
	again.Reason = "second attempt"
	recorded, err = storage.Exceptions.ResolveMaterialized(ctx, again, cancelledAt)
	if err != nil || recorded {
		t.Fatalf("second ResolveMaterialized = %v, %v", recorded, err)
	}
	all, err := storage.Exceptions.ListExceptions(ctx, "tpl-1")
	if err != nil || len(all) != 1 || all[0].ID != "ex-1" {
		t.Fatalf("first exception should be kept, got %+v, %v", all, err)
	}

	missing := "missing"
	orphan := exception
	orphan.ID = "ex-3"
	orphan.WeekStart = "2024-01-08"
	orphan.ResolvedBookingID = &missing
	if _, err := storage.Exceptions.ResolveMaterialized(ctx, orphan, cancelledAt); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
	if week, _ := storage.Exceptions.ListExceptionsForWeek(ctx, []string{"tpl-1"}, "2024-01-08"); len(week) != 0 {
		t.Fatalf("failed resolution must not leave an exception: %+v", week)
	}

	orphan.ResolvedBookingID = nil
	if _, err := storage.Exceptions.ResolveMaterialized(ctx, orphan, cancelledAt); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation without a booking, got %v", err)
	}
}

func TestConnectionPool_WithTransactionRollsBack(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	seedTemplate(t, storage, "tpl-1")

	failure := errors.New("second write failed")
	err := storage.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO template_exceptions (`+exceptionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, exceptionArgs(persistence.TemplateException{
			ID: "ex-1", TemplateID: "tpl-1", WeekStart: "2024-01-15", CreatedAt: baseTime,
		})...); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	all, err := storage.Exceptions.ListExceptions(ctx, "tpl-1")
	if err != nil || len(all) != 0 {
		t.Fatalf("rolled back insert is visible: %+v, %v", all, err)
	}
}

func TestTemplateRepository(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	seedTemplate(t, storage, "tpl-1")
	seedTemplate(t, storage, "tpl-2")

	template, err := storage.Templates.GetTemplate(ctx, "tpl-2")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	template.Active = false
	template.StartMinute = 600
	if err := storage.Templates.UpdateTemplate(ctx, template); err != nil {
		t.Fatalf("UpdateTemplate failed: %v", err)
	}

	active, err := storage.Templates.ListTemplates(ctx, "", false)
	if err != nil || len(active) != 1 || active[0].ID != "tpl-1" {
		t.Fatalf("active templates = %+v, %v", active, err)
	}
	all, err := storage.Templates.ListTemplates(ctx, "room-a", true)
	if err != nil || len(all) != 2 || all[1].StartMinute != 600 {
		t.Fatalf("all templates = %+v, %v", all, err)
	}
	other, err := storage.Templates.ListTemplates(ctx, "room-b", true)
	if err != nil || len(other) != 0 {
		t.Fatalf("room-b templates = %+v, %v", other, err)
	}

	bad := template
	bad.ID = "tpl-3"
	bad.RepeatIntervalWeeks = 0
	if err := storage.Templates.CreateTemplate(ctx, bad); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}

	template.ID = "missing"
	if err := storage.Templates.UpdateTemplate(ctx, template); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestErrorMapper(t *testing.T) {
	mapper := NewErrorMapper()
	tests := []struct {
		msg  string
		want error
	}{
		{"booking_room_overlap (1811)", persistence.ErrRoomOverlap},
		{"booking_owner_overlap", persistence.ErrOwnerOverlap},
		{"UNIQUE constraint failed: bookings.id", persistence.ErrDuplicate},
		{"FOREIGN KEY constraint failed", persistence.ErrForeignKeyViolation},
		{"CHECK constraint failed: start_time < end_time", persistence.ErrConstraintViolation},
	}
	for _, tt := range tests {
		if got := mapper.MapError(errors.New(tt.msg)); !errors.Is(got, tt.want) {
			t.Errorf("MapError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
	if mapper.MapError(nil) != nil {
		t.Error("MapError(nil) should be nil")
	}
}

func TestRetryHelper_RetriesBusyErrors(t *testing.T) {
	helper := NewRetryHelper(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2})

	calls := 0
	err := helper.WithRetry(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("WithRetry = %v after %d calls", err, calls)
	}

	calls = 0
	err = helper.WithRetry(context.Background(), func() error {
		calls++
		return errors.New("UNIQUE constraint failed: bookings.id")
	})
	if !errors.Is(err, persistence.ErrDuplicate) || calls != 1 {
		t.Fatalf("non-retryable error: %v after %d calls", err, calls)
	}
}
