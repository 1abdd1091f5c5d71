package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/example/room-timetable/internal/persistence"
)

// SQLSTATE codes mapped onto persistence errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeExclusionViolation  = "23P01"
)

const (
	roomOverlapConstraint  = "bookings_room_no_overlap"
	ownerOverlapConstraint = "bookings_owner_no_overlap"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeExclusionViolation:
		if strings.Contains(pgErr.ConstraintName, "owner") {
			return fmt.Errorf("%w: %s", persistence.ErrOwnerOverlap, pgErr.Message)
		}
		return fmt.Errorf("%w: %s", persistence.ErrRoomOverlap, pgErr.Message)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pgErr.Message)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", persistence.ErrForeignKeyViolation, pgErr.Message)
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, pgErr.Message)
	}
	return err
}
