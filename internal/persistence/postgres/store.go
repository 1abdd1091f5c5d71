// Package postgres implements the persistence repositories on PostgreSQL
// through GORM. Booking overlap is enforced with exclusion constraints.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/room-timetable/internal/persistence"
)

// Config describes the PostgreSQL connection.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements every persistence repository over a single *gorm.DB.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var (
	_ persistence.RoomRepository      = (*Store)(nil)
	_ persistence.ProfileRepository   = (*Store)(nil)
	_ persistence.BookingRepository   = (*Store)(nil)
	_ persistence.TemplateRepository  = (*Store)(nil)
	_ persistence.ExceptionRepository = (*Store)(nil)
)

// Open connects to PostgreSQL and tunes the connection pool.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: cfg.DSN}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return New(db, logger), nil
}

// New wraps an existing GORM handle.
func New(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "postgres")}
}

// constraintStatements add what AutoMigrate cannot express. Each statement is
// safe to re-run.
var constraintStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`DO $$ BEGIN
		ALTER TABLE timetable_templates ADD CONSTRAINT timetable_templates_room_fk
			FOREIGN KEY (room_id) REFERENCES rooms(id);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN
		ALTER TABLE bookings ADD CONSTRAINT bookings_room_fk
			FOREIGN KEY (room_id) REFERENCES rooms(id);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN
		ALTER TABLE bookings ADD CONSTRAINT bookings_template_fk
			FOREIGN KEY (template_id) REFERENCES timetable_templates(id);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN
		ALTER TABLE bookings ADD CONSTRAINT bookings_valid_range CHECK (start_time < end_time);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN
		ALTER TABLE template_exceptions ADD CONSTRAINT template_exceptions_template_fk
			FOREIGN KEY (template_id) REFERENCES timetable_templates(id);
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN
		ALTER TABLE template_exceptions ADD CONSTRAINT template_exceptions_booking_fk
			FOREIGN KEY (resolved_booking_id) REFERENCES bookings(id) ON DELETE SET NULL;
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`DO $$ BEGIN
		ALTER TABLE bookings ADD CONSTRAINT ` + roomOverlapConstraint + `
			EXCLUDE USING gist (room_id WITH =, tstzrange(start_time, end_time, '[)') WITH &&)
			WHERE (status = 'confirmed');
	EXCEPTION WHEN duplicate_object OR duplicate_table THEN NULL; END $$`,
	`DO $$ BEGIN
		ALTER TABLE bookings ADD CONSTRAINT ` + ownerOverlapConstraint + `
			EXCLUDE USING gist (owner_id WITH =, tstzrange(start_time, end_time, '[)') WITH &&)
			WHERE (status = 'confirmed');
	EXCEPTION WHEN duplicate_object OR duplicate_table THEN NULL; END $$`,
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&roomRow{}, &profileRow{}, &templateRow{}, &bookingRow{}, &exceptionRow{}); err != nil {
		return fmt.Errorf("postgres: auto-migrate: %w", err)
	}
	for _, stmt := range constraintStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("postgres: apply constraints: %w", err)
		}
	}
	s.logger.InfoContext(ctx, "database schema up to date")
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- RoomRepository implementation ---

// UpsertRoom inserts the room or replaces the stored attributes.
func (s *Store) UpsertRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" || room.Capacity < 0 {
		return persistence.ErrConstraintViolation
	}
	row := toRoomRow(room)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "capacity", "room_type", "requires_approval", "is_active", "updated_at"}),
	}).Create(&row).Error
	return mapError(err)
}

// GetRoom retrieves a room by ID.
func (s *Store) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	var row roomRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return persistence.Room{}, mapError(err)
	}
	return row.toPersistence(), nil
}

// ListRooms returns all rooms ordered by name then ID.
func (s *Store) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	var rows []roomRow
	if err := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	rooms := make([]persistence.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, row.toPersistence())
	}
	return rooms, nil
}

// --- ProfileRepository implementation ---

// UpsertProfile inserts the profile or updates its name and admin flag.
func (s *Store) UpsertProfile(ctx context.Context, profile persistence.UserProfile) error {
	if profile.ID == "" {
		return persistence.ErrConstraintViolation
	}
	row := profileRow{
		ID:        profile.ID,
		FullName:  profile.FullName,
		IsAdmin:   profile.IsAdmin,
		CreatedAt: profile.CreatedAt.UTC(),
		UpdatedAt: profile.UpdatedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "is_admin", "updated_at"}),
	}).Create(&row).Error
	return mapError(err)
}

// GetProfile retrieves a profile by user ID.
func (s *Store) GetProfile(ctx context.Context, id string) (persistence.UserProfile, error) {
	var row profileRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return persistence.UserProfile{}, mapError(err)
	}
	return row.toPersistence(), nil
}

// ListProfiles returns every profile ordered by ID.
func (s *Store) ListProfiles(ctx context.Context) ([]persistence.UserProfile, error) {
	var rows []profileRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	profiles := make([]persistence.UserProfile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, row.toPersistence())
	}
	return profiles, nil
}

// --- BookingRepository implementation ---

// CreateBooking inserts a new booking.
func (s *Store) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	row, err := toBookingRow(booking)
	if err != nil {
		return err
	}
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

// UpdateBooking replaces the mutable attributes of an existing booking.
func (s *Store) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	result := s.db.WithContext(ctx).Model(&bookingRow{}).Where("id = ?", booking.ID).Updates(map[string]any{
		"room_id":    booking.RoomID,
		"owner_id":   booking.OwnerID,
		"title":      booking.Title,
		"notes":      booking.Notes,
		"start_time": booking.Start.UTC(),
		"end_time":   booking.End.UTC(),
		"status":     booking.Status,
		"updated_at": booking.UpdatedAt.UTC(),
	})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetBooking retrieves a booking by ID.
func (s *Store) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	var row bookingRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return persistence.Booking{}, mapError(err)
	}
	return row.toPersistence(), nil
}

// DeleteBooking removes a booking.
func (s *Store) DeleteBooking(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&bookingRow{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListConfirmedByRoom returns confirmed bookings of the room that start in
// [from, to), ordered by start time.
func (s *Store) ListConfirmedByRoom(ctx context.Context, roomID string, from, to time.Time) ([]persistence.Booking, error) {
	return s.listBookings(ctx, "room_id = ? AND status = ? AND start_time >= ? AND start_time < ?",
		roomID, "confirmed", from.UTC(), to.UTC())
}

// ListConfirmedByOwner returns confirmed bookings of the owner that overlap
// [from, to), ordered by start time.
func (s *Store) ListConfirmedByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]persistence.Booking, error) {
	return s.listBookings(ctx, "owner_id = ? AND status = ? AND start_time < ? AND end_time > ?",
		ownerID, "confirmed", to.UTC(), from.UTC())
}

func (s *Store) listBookings(ctx context.Context, query string, args ...any) ([]persistence.Booking, error) {
	var rows []bookingRow
	if err := s.db.WithContext(ctx).Where(query, args...).Order("start_time ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	bookings := make([]persistence.Booking, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toPersistence())
	}
	return bookings, nil
}

// FindMaterialized returns the booking generated from the template for the
// week, whatever its status.
func (s *Store) FindMaterialized(ctx context.Context, templateID, week string) (persistence.Booking, bool, error) {
	date, err := parseDate(week)
	if err != nil {
		return persistence.Booking{}, false, err
	}
	var row bookingRow
	err = s.db.WithContext(ctx).Where("template_id = ? AND generated_for_week = ?", templateID, date).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.Booking{}, false, nil
	}
	if err != nil {
		return persistence.Booking{}, false, mapError(err)
	}
	return row.toPersistence(), true, nil
}

// InsertMaterialized inserts a template-generated booking unless one already
// exists for its (template, week) key.
func (s *Store) InsertMaterialized(ctx context.Context, booking persistence.Booking) (bool, error) {
	if booking.TemplateID == nil || booking.GeneratedForWeek == nil {
		return false, persistence.ErrConstraintViolation
	}
	row, err := toBookingRow(booking)
	if err != nil {
		return false, err
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_id"}, {Name: "generated_for_week"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return false, mapError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// --- TemplateRepository implementation ---

// CreateTemplate inserts a new template.
func (s *Store) CreateTemplate(ctx context.Context, template persistence.Template) error {
	row, err := toTemplateRow(template)
	if err != nil {
		return err
	}
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

// UpdateTemplate replaces the attributes of an existing template.
func (s *Store) UpdateTemplate(ctx context.Context, template persistence.Template) error {
	effectiveFrom, err := parseDate(template.EffectiveFrom)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&templateRow{}).Where("id = ?", template.ID).Updates(map[string]any{
		"room_id":               template.RoomID,
		"teacher_name":          template.TeacherName,
		"title":                 template.Title,
		"weekday":               template.Weekday,
		"start_minute":          template.StartMinute,
		"duration_minutes":      template.DurationMinutes,
		"repeat_interval_weeks": template.RepeatIntervalWeeks,
		"effective_from":        effectiveFrom,
		"is_active":             template.Active,
		"notes":                 template.Notes,
		"updated_at":            template.UpdatedAt.UTC(),
	})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (persistence.Template, error) {
	var row templateRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return persistence.Template{}, mapError(err)
	}
	return row.toPersistence(), nil
}

// ListTemplates returns templates ordered by ID, optionally for one room.
func (s *Store) ListTemplates(ctx context.Context, roomID string, includeInactive bool) ([]persistence.Template, error) {
	query := s.db.WithContext(ctx).Model(&templateRow{})
	if roomID != "" {
		query = query.Where("room_id = ?", roomID)
	}
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}

	var rows []templateRow
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	templates := make([]persistence.Template, 0, len(rows))
	for _, row := range rows {
		templates = append(templates, row.toPersistence())
	}
	return templates, nil
}

// --- ExceptionRepository implementation ---

// CreateException records a cancelled week.
func (s *Store) CreateException(ctx context.Context, exception persistence.TemplateException) error {
	row, err := toExceptionRow(exception)
	if err != nil {
		return err
	}
	return mapError(s.db.WithContext(ctx).Create(&row).Error)
}

// ResolveMaterialized records the exception and cancels the booking it
// resolves in one transaction. An exception already present for the template
// and week is kept; the booking is cancelled either way.
func (s *Store) ResolveMaterialized(ctx context.Context, exception persistence.TemplateException, cancelledAt time.Time) (bool, error) {
	if exception.ResolvedBookingID == nil || *exception.ResolvedBookingID == "" {
		return false, persistence.ErrConstraintViolation
	}
	row, err := toExceptionRow(exception)
	if err != nil {
		return false, err
	}

	var recorded bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "template_id"}, {Name: "week_start_date"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return result.Error
		}
		recorded = result.RowsAffected > 0

		return tx.Model(&bookingRow{}).
			Where("id = ? AND template_id = ? AND status IN ?", *exception.ResolvedBookingID, exception.TemplateID, []string{"pending", "confirmed"}).
			Updates(map[string]any{"status": "cancelled", "updated_at": cancelledAt.UTC()}).Error
	})
	if err != nil {
		return false, mapError(err)
	}
	return recorded, nil
}

// ListExceptionsForWeek returns the exceptions of the given templates for one week.
func (s *Store) ListExceptionsForWeek(ctx context.Context, templateIDs []string, week string) ([]persistence.TemplateException, error) {
	if len(templateIDs) == 0 {
		return nil, nil
	}
	date, err := parseDate(week)
	if err != nil {
		return nil, err
	}
	return s.listExceptions(s.db.WithContext(ctx).
		Where("template_id IN ? AND week_start_date = ?", templateIDs, date).
		Order("template_id ASC"))
}

// ListExceptions returns every exception of a template ordered by week.
func (s *Store) ListExceptions(ctx context.Context, templateID string) ([]persistence.TemplateException, error) {
	return s.listExceptions(s.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("week_start_date ASC"))
}

func (s *Store) listExceptions(query *gorm.DB) ([]persistence.TemplateException, error) {
	var rows []exceptionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	exceptions := make([]persistence.TemplateException, 0, len(rows))
	for _, row := range rows {
		exceptions = append(exceptions, row.toPersistence())
	}
	return exceptions, nil
}
