package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/room-timetable/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	return logging.Scoped(ctx, base, "service", serviceName, operation, attrs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	}

	var integrityErr *DataIntegrityError
	if errors.As(err, &integrityErr) {
		return "data_integrity"
	}
	var raceErr *RaceLostError
	if errors.As(err, &raceErr) {
		return "race_lost"
	}
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return "conflict"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}

// logOutcome records a rejected or failed operation at a level matching its kind.
func logOutcome(ctx context.Context, logger *slog.Logger, msg string, err error) {
	kind := ErrorKind(err)
	switch kind {
	case "validation", "conflict", "not_found", "already_exists", "invalid_transition", "unauthorized":
		logger.InfoContext(ctx, msg, "error_kind", kind, "error", err)
	case "race_lost", "data_integrity":
		logger.WarnContext(ctx, msg, "error_kind", kind, "error", err)
	default:
		logger.ErrorContext(ctx, msg, "error_kind", kind, "error", err)
	}
}
