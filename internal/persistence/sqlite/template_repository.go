package sqlite

import (
	"context"

	"github.com/example/room-timetable/internal/persistence"
)

// TemplateRepository implements persistence.TemplateRepository using SQLite
type TemplateRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewTemplateRepository creates a new SQLite template repository
func NewTemplateRepository(pool *ConnectionPool) *TemplateRepository {
	return &TemplateRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const templateColumns = `id, room_id, teacher_name, title, weekday, start_minute, duration_minutes,
	repeat_interval_weeks, effective_from, is_active, notes, created_by, created_at, updated_at`

// CreateTemplate inserts a new template.
func (r *TemplateRepository) CreateTemplate(ctx context.Context, template persistence.Template) error {
	if template.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `INSERT INTO timetable_templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		template.ID,
		template.RoomID,
		template.TeacherName,
		template.Title,
		template.Weekday,
		template.StartMinute,
		template.DurationMinutes,
		template.RepeatIntervalWeeks,
		template.EffectiveFrom,
		template.Active,
		template.Notes,
		template.CreatedBy,
		formatTime(template.CreatedAt),
		formatTime(template.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateTemplate replaces the attributes of an existing template.
func (r *TemplateRepository) UpdateTemplate(ctx context.Context, template persistence.Template) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE timetable_templates
		SET room_id = ?, teacher_name = ?, title = ?, weekday = ?, start_minute = ?,
			duration_minutes = ?, repeat_interval_weeks = ?, effective_from = ?,
			is_active = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`,
		template.RoomID,
		template.TeacherName,
		template.Title,
		template.Weekday,
		template.StartMinute,
		template.DurationMinutes,
		template.RepeatIntervalWeeks,
		template.EffectiveFrom,
		template.Active,
		template.Notes,
		formatTime(template.UpdatedAt),
		template.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return r.mapper.MapError(err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetTemplate retrieves a template by ID.
func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (persistence.Template, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+templateColumns+` FROM timetable_templates WHERE id = ?`, id)
	template, err := scanTemplate(row)
	if err != nil {
		return persistence.Template{}, r.mapper.MapError(err)
	}
	return template, nil
}

// ListTemplates returns templates ordered by ID. An empty roomID lists every
// room; inactive templates are included only on request.
func (r *TemplateRepository) ListTemplates(ctx context.Context, roomID string, includeInactive bool) ([]persistence.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM timetable_templates WHERE 1 = 1`
	var args []any
	if roomID != "" {
		query += ` AND room_id = ?`
		args = append(args, roomID)
	}
	if !includeInactive {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var templates []persistence.Template
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		templates = append(templates, template)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return templates, nil
}

func scanTemplate(row rowScanner) (persistence.Template, error) {
	var template persistence.Template
	var createdAt, updatedAt string
	if err := row.Scan(
		&template.ID,
		&template.RoomID,
		&template.TeacherName,
		&template.Title,
		&template.Weekday,
		&template.StartMinute,
		&template.DurationMinutes,
		&template.RepeatIntervalWeeks,
		&template.EffectiveFrom,
		&template.Active,
		&template.Notes,
		&template.CreatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Template{}, err
	}

	var err error
	if template.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Template{}, err
	}
	if template.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Template{}, err
	}
	return template, nil
}
