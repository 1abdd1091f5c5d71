package http

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/room-timetable/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	// Requests outside RequestLogger still get their chi request id.
	if id := middleware.GetReqID(ctx); id != "" && logging.FromContext(ctx) == nil {
		attrs = append(attrs, "request_id", id)
	}
	return logging.Scoped(ctx, fallback, "handler", handlerName, operation, attrs...)
}
