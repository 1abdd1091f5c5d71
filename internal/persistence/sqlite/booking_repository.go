package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/room-timetable/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite.
// Overlap between confirmed bookings is enforced by schema triggers, so
// concurrent writers cannot both commit conflicting rows.
type BookingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewBookingRepository creates a new SQLite booking repository
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const bookingColumns = `id, room_id, owner_id, title, notes, start_time, end_time, status,
	template_id, generated_for_week, created_at, updated_at`

// CreateBooking inserts a new booking.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if err := validateBooking(booking); err != nil {
		return err
	}

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, bookingArgs(booking)...)
		return err
	})
}

// UpdateBooking replaces the mutable attributes of an existing booking.
func (r *BookingRepository) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	if err := validateBooking(booking); err != nil {
		return err
	}

	var rowsAffected int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `
			UPDATE bookings
			SET room_id = ?, owner_id = ?, title = ?, notes = ?, start_time = ?, end_time = ?,
				status = ?, updated_at = ?
			WHERE id = ?
		`,
			booking.RoomID,
			booking.OwnerID,
			booking.Title,
			booking.Notes,
			formatTime(booking.Start),
			formatTime(booking.End),
			booking.Status,
			formatTime(booking.UpdatedAt),
			booking.ID,
		)
		if err != nil {
			return err
		}
		rowsAffected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetBooking retrieves a booking by ID.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}
	return booking, nil
}

// DeleteBooking removes a booking. Exceptions that recorded it as their
// resolved booking keep the exception and lose the reference.
func (r *BookingRepository) DeleteBooking(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListConfirmedByRoom returns confirmed bookings of the room that start in
// [from, to), ordered by start time.
func (r *BookingRepository) ListConfirmedByRoom(ctx context.Context, roomID string, from, to time.Time) ([]persistence.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE room_id = ? AND status = 'confirmed' AND start_time >= ? AND start_time < ?
		ORDER BY start_time ASC, id ASC`,
		roomID, formatTime(from), formatTime(to))
}

// ListConfirmedByOwner returns confirmed bookings of the owner that overlap
// [from, to), ordered by start time.
func (r *BookingRepository) ListConfirmedByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]persistence.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE owner_id = ? AND status = 'confirmed' AND start_time < ? AND end_time > ?
		ORDER BY start_time ASC, id ASC`,
		ownerID, formatTime(to), formatTime(from))
}

// FindMaterialized returns the booking generated from the template for the
// week, whatever its status.
func (r *BookingRepository) FindMaterialized(ctx context.Context, templateID, week string) (persistence.Booking, bool, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE template_id = ? AND generated_for_week = ?`, templateID, week)
	booking, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return persistence.Booking{}, false, nil
	}
	if err != nil {
		return persistence.Booking{}, false, r.mapper.MapError(err)
	}
	return booking, true, nil
}

// InsertMaterialized inserts a template-generated booking unless one already
// exists for its (template, week) key.
func (r *BookingRepository) InsertMaterialized(ctx context.Context, booking persistence.Booking) (bool, error) {
	if booking.TemplateID == nil || booking.GeneratedForWeek == nil {
		return false, persistence.ErrConstraintViolation
	}
	if err := validateBooking(booking); err != nil {
		return false, err
	}

	var inserted bool
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(template_id, generated_for_week) DO NOTHING`, bookingArgs(booking)...)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		inserted = rowsAffected > 0
		return nil
	})
	return inserted, err
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]persistence.Booking, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return bookings, nil
}

func validateBooking(booking persistence.Booking) error {
	if booking.ID == "" || booking.RoomID == "" || booking.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}
	if !booking.End.After(booking.Start) {
		return persistence.ErrConstraintViolation
	}
	return nil
}

func bookingArgs(booking persistence.Booking) []any {
	return []any{
		booking.ID,
		booking.RoomID,
		booking.OwnerID,
		booking.Title,
		booking.Notes,
		formatTime(booking.Start),
		formatTime(booking.End),
		booking.Status,
		nullString(booking.TemplateID),
		nullString(booking.GeneratedForWeek),
		formatTime(booking.CreatedAt),
		formatTime(booking.UpdatedAt),
	}
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var booking persistence.Booking
	var start, end, createdAt, updatedAt string
	var templateID, week sql.NullString
	if err := row.Scan(
		&booking.ID,
		&booking.RoomID,
		&booking.OwnerID,
		&booking.Title,
		&booking.Notes,
		&start,
		&end,
		&booking.Status,
		&templateID,
		&week,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Booking{}, err
	}

	booking.TemplateID = stringPtr(templateID)
	booking.GeneratedForWeek = stringPtr(week)

	var err error
	if booking.Start, err = parseTime("start_time", start); err != nil {
		return persistence.Booking{}, err
	}
	if booking.End, err = parseTime("end_time", end); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	return booking, nil
}
