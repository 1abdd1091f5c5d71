package testfixtures

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/room-timetable/internal/persistence/sqlite"
	"github.com/example/room-timetable/internal/storage"
)

// SQLiteHarness provides a migrated temporary SQLite store together with the
// adapter the application services consume.
type SQLiteHarness struct {
	Storage *sqlite.Storage
	Adapter *storage.Adapter

	tb      testing.TB
	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Civil dates are interpreted in loc, or UTC when nil.
// Callers may optionally invoke Close, but the helper also registers a cleanup
// callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB, loc *time.Location) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "timetable.db")
	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage: store,
		Adapter: storage.New(storage.Backend{
			Rooms:      store.Rooms,
			Profiles:   store.Profiles,
			Bookings:   store.Bookings,
			Templates:  store.Templates,
			Exceptions: store.Exceptions,
		}, loc),
		tb: tb,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedRoom stores the room fixture.
func (h *SQLiteHarness) SeedRoom(room RoomFixture) RoomFixture {
	h.tb.Helper()
	if err := h.Storage.Rooms.UpsertRoom(context.Background(), room.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed room %s: %v", room.ID, err)
	}
	return room
}

// SeedProfile stores the profile fixture.
func (h *SQLiteHarness) SeedProfile(profile ProfileFixture) ProfileFixture {
	h.tb.Helper()
	if err := h.Storage.Profiles.UpsertProfile(context.Background(), profile.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed profile %s: %v", profile.ID, err)
	}
	return profile
}

// SeedTemplate stores the template fixture.
func (h *SQLiteHarness) SeedTemplate(template TemplateFixture) TemplateFixture {
	h.tb.Helper()
	if err := h.Storage.Templates.CreateTemplate(context.Background(), template.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed template %s: %v", template.ID, err)
	}
	return template
}
