package sqlite

import (
	"context"
	"embed"
	"log/slog"

	"github.com/example/room-timetable/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the SQLite-backed repositories over one connection pool.
type Storage struct {
	pool   *ConnectionPool
	logger *slog.Logger

	Rooms      *RoomRepository
	Profiles   *ProfileRepository
	Bookings   *BookingRepository
	Templates  *TemplateRepository
	Exceptions *ExceptionRepository
}

// Open connects to the database described by cfg. Call Migrate before use.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Storage{
		pool:       pool,
		logger:     logger.With("component", "sqlite"),
		Rooms:      NewRoomRepository(pool),
		Profiles:   NewProfileRepository(pool),
		Bookings:   NewBookingRepository(pool),
		Templates:  NewTemplateRepository(pool),
		Exceptions: NewExceptionRepository(pool),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	return migration.NewManager(s.pool.DB(), migrationFiles, "migrations", s.logger).Run(ctx)
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
