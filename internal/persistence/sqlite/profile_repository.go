package sqlite

import (
	"context"

	"github.com/example/room-timetable/internal/persistence"
)

// ProfileRepository implements persistence.ProfileRepository using SQLite
type ProfileRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewProfileRepository creates a new SQLite profile repository
func NewProfileRepository(pool *ConnectionPool) *ProfileRepository {
	return &ProfileRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// UpsertProfile inserts the profile or updates its name and admin flag.
func (r *ProfileRepository) UpsertProfile(ctx context.Context, profile persistence.UserProfile) error {
	if profile.ID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO user_profiles (id, full_name, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			is_admin = excluded.is_admin,
			updated_at = excluded.updated_at
	`,
		profile.ID,
		profile.FullName,
		profile.IsAdmin,
		formatTime(profile.CreatedAt),
		formatTime(profile.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetProfile retrieves a profile by user ID.
func (r *ProfileRepository) GetProfile(ctx context.Context, id string) (persistence.UserProfile, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT id, full_name, is_admin, created_at, updated_at
		FROM user_profiles WHERE id = ?
	`, id)
	profile, err := scanProfile(row)
	if err != nil {
		return persistence.UserProfile{}, r.mapper.MapError(err)
	}
	return profile, nil
}

// ListProfiles returns every profile ordered by ID.
func (r *ProfileRepository) ListProfiles(ctx context.Context) ([]persistence.UserProfile, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, full_name, is_admin, created_at, updated_at
		FROM user_profiles ORDER BY id ASC
	`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var profiles []persistence.UserProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return profiles, nil
}

func scanProfile(row rowScanner) (persistence.UserProfile, error) {
	var profile persistence.UserProfile
	var createdAt, updatedAt string
	if err := row.Scan(&profile.ID, &profile.FullName, &profile.IsAdmin, &createdAt, &updatedAt); err != nil {
		return persistence.UserProfile{}, err
	}

	var err error
	if profile.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.UserProfile{}, err
	}
	if profile.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.UserProfile{}, err
	}
	return profile, nil
}
