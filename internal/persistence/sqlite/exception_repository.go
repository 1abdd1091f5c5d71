package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/room-timetable/internal/persistence"
)

// ExceptionRepository implements persistence.ExceptionRepository using SQLite
type ExceptionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewExceptionRepository creates a new SQLite template exception repository
func NewExceptionRepository(pool *ConnectionPool) *ExceptionRepository {
	return &ExceptionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const exceptionColumns = `id, template_id, week_start_date, reason, resolved_booking_id, created_by, created_at`

// CreateException records a cancelled week. A second exception for the same
// template and week fails with persistence.ErrDuplicate.
func (r *ExceptionRepository) CreateException(ctx context.Context, exception persistence.TemplateException) error {
	if exception.ID == "" || exception.TemplateID == "" || exception.WeekStart == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `INSERT INTO template_exceptions (`+exceptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, exceptionArgs(exception)...)
	return r.mapper.MapError(err)
}

// ResolveMaterialized records the exception and cancels the booking it
// resolves in one write transaction. An exception already present for the
// template and week is kept; the booking is cancelled either way.
func (r *ExceptionRepository) ResolveMaterialized(ctx context.Context, exception persistence.TemplateException, cancelledAt time.Time) (bool, error) {
	if exception.ID == "" || exception.TemplateID == "" || exception.WeekStart == "" {
		return false, persistence.ErrConstraintViolation
	}
	if exception.ResolvedBookingID == nil || *exception.ResolvedBookingID == "" {
		return false, persistence.ErrConstraintViolation
	}

	var recorded bool
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := tx.ExecContext(ctx, `INSERT INTO template_exceptions (`+exceptionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(template_id, week_start_date) DO NOTHING`, exceptionArgs(exception)...)
			if err != nil {
				return err
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return err
			}
			recorded = rowsAffected > 0

			_, err = tx.ExecContext(ctx, `
				UPDATE bookings SET status = 'cancelled', updated_at = ?
				WHERE id = ? AND template_id = ? AND status IN ('pending', 'confirmed')
			`, formatTime(cancelledAt), *exception.ResolvedBookingID, exception.TemplateID)
			return err
		})
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

func exceptionArgs(exception persistence.TemplateException) []any {
	return []any{
		exception.ID,
		exception.TemplateID,
		exception.WeekStart,
		exception.Reason,
		nullString(exception.ResolvedBookingID),
		exception.CreatedBy,
		formatTime(exception.CreatedAt),
	}
}

// ListExceptionsForWeek returns the exceptions of the given templates for one week.
func (r *ExceptionRepository) ListExceptionsForWeek(ctx context.Context, templateIDs []string, week string) ([]persistence.TemplateException, error) {
	if len(templateIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(templateIDs)), ", ")
	args := make([]any, 0, len(templateIDs)+1)
	args = append(args, week)
	for _, id := range templateIDs {
		args = append(args, id)
	}

	return r.list(ctx, `SELECT `+exceptionColumns+` FROM template_exceptions
		WHERE week_start_date = ? AND template_id IN (`+placeholders+`)
		ORDER BY template_id ASC`, args...)
}

// ListExceptions returns every exception of a template ordered by week.
func (r *ExceptionRepository) ListExceptions(ctx context.Context, templateID string) ([]persistence.TemplateException, error) {
	return r.list(ctx, `SELECT `+exceptionColumns+` FROM template_exceptions
		WHERE template_id = ? ORDER BY week_start_date ASC`, templateID)
}

func (r *ExceptionRepository) list(ctx context.Context, query string, args ...any) ([]persistence.TemplateException, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var exceptions []persistence.TemplateException
	for rows.Next() {
		var exception persistence.TemplateException
		var resolved sql.NullString
		var createdAt string
		if err := rows.Scan(
			&exception.ID,
			&exception.TemplateID,
			&exception.WeekStart,
			&exception.Reason,
			&resolved,
			&exception.CreatedBy,
			&createdAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		exception.ResolvedBookingID = stringPtr(resolved)
		if exception.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		exceptions = append(exceptions, exception)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return exceptions, nil
}
