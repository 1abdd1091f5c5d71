package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/testfixtures"
)

var tokyo = time.FixedZone("JST", 9*60*60)

func mondayInTokyo() time.Time {
	return time.Date(2024, time.January, 15, 0, 0, 0, 0, tokyo)
}

func TestAdapter_MaterializedBookingRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewSQLiteHarness(t, tokyo)
	room := h.SeedRoom(testfixtures.NewRoomFixture())
	tpl := h.SeedTemplate(testfixtures.NewTemplateFixture(room.ID))

	week := mondayInTokyo()
	start := week.Add(9 * time.Hour)
	booking := application.Booking{
		ID:               "bk-1",
		RoomID:           room.ID,
		OwnerID:          "user-1",
		Title:            "Lesson",
		Start:            start,
		End:              start.Add(time.Hour),
		Status:           application.BookingStatusConfirmed,
		TemplateID:       tpl.ID,
		GeneratedForWeek: week,
		CreatedAt:        testfixtures.ReferenceTime(),
		UpdatedAt:        testfixtures.ReferenceTime(),
	}

	inserted, err := h.Adapter.InsertMaterialized(ctx, booking)
	require.NoError(t, err)
	require.True(t, inserted)

	again, err := h.Adapter.InsertMaterialized(ctx, booking)
	require.NoError(t, err)
	assert.False(t, again, "second insert for the same week must be a no-op")

	stored, found, err := h.Adapter.FindMaterialized(ctx, tpl.ID, week)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "bk-1", stored.ID)
	assert.True(t, stored.Start.Equal(start))
	assert.True(t, stored.GeneratedForWeek.Equal(week), "week %v should equal %v", stored.GeneratedForWeek, week)
	assert.Equal(t, tokyo, stored.GeneratedForWeek.Location())
	assert.True(t, stored.Materialized())

	_, found, err = h.Adapter.FindMaterialized(ctx, tpl.ID, week.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAdapter_TemplatesUseCivilDates(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewSQLiteHarness(t, tokyo)
	room := h.SeedRoom(testfixtures.NewRoomFixture())

	tpl := application.Template{
		ID:                  "tpl-civil",
		RoomID:              room.ID,
		TeacherName:         "Teacher A",
		Title:               "Maths",
		Weekday:             2,
		StartMinute:         13 * 60,
		DurationMinutes:     50,
		RepeatIntervalWeeks: 2,
		EffectiveFrom:       mondayInTokyo(),
		Active:              true,
		CreatedBy:           "admin-1",
		CreatedAt:           testfixtures.ReferenceTime(),
		UpdatedAt:           testfixtures.ReferenceTime(),
	}
	require.NoError(t, h.Adapter.CreateTemplate(ctx, tpl))

	got, err := h.Adapter.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.True(t, got.EffectiveFrom.Equal(mondayInTokyo()))
	assert.Equal(t, 2, got.RepeatIntervalWeeks)
	assert.Equal(t, 13*60, got.StartMinute)

	raw, err := h.Storage.Templates.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", raw.EffectiveFrom, "civil date must not shift to the UTC day")

	tpl.Active = false
	require.NoError(t, h.Adapter.UpdateTemplate(ctx, tpl))

	active, err := h.Adapter.ListTemplates(ctx, room.ID, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := h.Adapter.ListTemplates(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
}

func TestAdapter_Exceptions(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewSQLiteHarness(t, tokyo)
	room := h.SeedRoom(testfixtures.NewRoomFixture())
	tpl := h.SeedTemplate(testfixtures.NewTemplateFixture(room.ID))
	week := mondayInTokyo()

	start := week.Add(9 * time.Hour)
	require.NoError(t, h.Adapter.CreateBooking(ctx, application.Booking{
		ID:               "bk-resolved",
		RoomID:           room.ID,
		OwnerID:          "user-1",
		Title:            "Lesson",
		Start:            start,
		End:              start.Add(time.Hour),
		Status:           application.BookingStatusCancelled,
		TemplateID:       tpl.ID,
		GeneratedForWeek: week,
		CreatedAt:        testfixtures.ReferenceTime(),
		UpdatedAt:        testfixtures.ReferenceTime(),
	}))

	exception := application.TemplateException{
		ID:                "ex-1",
		TemplateID:        tpl.ID,
		WeekStart:         week,
		Reason:            "holiday",
		ResolvedBookingID: "bk-resolved",
		CreatedBy:         "admin-1",
		CreatedAt:         testfixtures.ReferenceTime(),
	}
	require.NoError(t, h.Adapter.CreateException(ctx, exception))

	err := h.Adapter.CreateException(ctx, application.TemplateException{
		ID:         "ex-2",
		TemplateID: tpl.ID,
		WeekStart:  week,
		CreatedAt:  testfixtures.ReferenceTime(),
	})
	assert.True(t, errors.Is(err, persistence.ErrDuplicate), "expected duplicate, got %v", err)

	forWeek, err := h.Adapter.ListExceptionsForWeek(ctx, []string{tpl.ID, "tpl-unknown"}, week)
	require.NoError(t, err)
	require.Len(t, forWeek, 1)
	assert.Equal(t, "bk-resolved", forWeek[0].ResolvedBookingID)
	assert.True(t, forWeek[0].WeekStart.Equal(week))

	other, err := h.Adapter.ListExceptionsForWeek(ctx, []string{tpl.ID}, week.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Empty(t, other)

	all, err := h.Adapter.ListExceptions(ctx, tpl.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "holiday", all[0].Reason)
}

func TestAdapter_SurfacesOverlapErrors(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewSQLiteHarness(t, tokyo)
	room := h.SeedRoom(testfixtures.NewRoomFixture())
	start := mondayInTokyo().Add(10 * time.Hour)

	newBooking := func(id, owner string, offset time.Duration) application.Booking {
		return application.Booking{
			ID:        id,
			RoomID:    room.ID,
			OwnerID:   owner,
			Title:     "Review",
			Start:     start.Add(offset),
			End:       start.Add(offset + time.Hour),
			Status:    application.BookingStatusConfirmed,
			CreatedAt: testfixtures.ReferenceTime(),
			UpdatedAt: testfixtures.ReferenceTime(),
		}
	}

	require.NoError(t, h.Adapter.CreateBooking(ctx, newBooking("bk-1", "user-1", 0)))

	err := h.Adapter.CreateBooking(ctx, newBooking("bk-2", "user-2", 30*time.Minute))
	assert.True(t, errors.Is(err, persistence.ErrRoomOverlap), "expected room overlap, got %v", err)

	touching := newBooking("bk-3", "user-2", time.Hour)
	require.NoError(t, h.Adapter.CreateBooking(ctx, touching), "touching intervals do not overlap")

	byRoom, err := h.Adapter.ListConfirmedByRoom(ctx, room.ID, mondayInTokyo(), mondayInTokyo().AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Len(t, byRoom, 2)

	byOwner, err := h.Adapter.ListConfirmedByOwner(ctx, "user-2", start, start.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, "bk-3", byOwner[0].ID)

	_, err = h.Adapter.GetBooking(ctx, "missing")
	assert.True(t, errors.Is(err, persistence.ErrNotFound))
}

func TestAdapter_RoomsAndProfiles(t *testing.T) {
	ctx := context.Background()
	h := testfixtures.NewSQLiteHarness(t, nil)
	room := h.SeedRoom(testfixtures.NewRoomFixture(testfixtures.WithRoomApproval()))
	admin := h.SeedProfile(testfixtures.NewProfileFixture(testfixtures.WithProfileAdmin()))
	h.SeedProfile(testfixtures.NewProfileFixture())

	got, err := h.Adapter.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, got.RequiresApproval)
	assert.True(t, got.Active)

	profiles, err := h.Adapter.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	var sawAdmin bool
	for _, p := range profiles {
		if p.ID == admin.ID {
			sawAdmin = p.IsAdmin
		}
	}
	assert.True(t, sawAdmin)
}
