package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrRoomOverlap is returned when a confirmed booking would overlap another
	// confirmed booking of the same room.
	ErrRoomOverlap = errors.New("persistence: room booking overlap")
	// ErrOwnerOverlap is returned when a confirmed booking would overlap another
	// confirmed booking of the same owner.
	ErrOwnerOverlap = errors.New("persistence: owner booking overlap")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrConstraintViolation is returned when a check constraint rejects a write.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
