package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/jobs"
	"github.com/example/room-timetable/internal/logging"
)

var (
	errBadRequestBody   = errors.New("request body is malformed")
	errMissingPrincipal = errors.New("caller identity is missing")
	errRateLimited      = errors.New("too many requests")
)

// Error codes returned in errorResponse.ErrorCode.
const (
	codeBadRequest        = "BAD_REQUEST"
	codeUnauthenticated   = "UNAUTHENTICATED"
	codeForbidden         = "FORBIDDEN"
	codeNotFound          = "NOT_FOUND"
	codeValidation        = "VALIDATION_FAILED"
	codeConflict          = "CONFLICT"
	codeRaceLost          = "CONFLICT_RACE_LOST"
	codeAlreadyExists     = "ALREADY_EXISTS"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeJobRunning        = "JOB_RUNNING"
	codeRateLimited       = "RATE_LIMITED"
	codeInternal          = "INTERNAL"
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(w http.ResponseWriter, req *http.Request, status int, payload any) {
	if w == nil {
		return
	}
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}
	render.Status(req, status)
	render.JSON(w, req, payload)
}

func (r responder) writeError(w http.ResponseWriter, req *http.Request, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(req.Context()).InfoContext(req.Context(), "request rejected", "status", status, "error", err)
	}
	r.writeJSON(w, req, status, errorResponse{ErrorCode: code, Message: message})
}

// handleServiceError maps engine errors to status codes. Rejections keep
// their machine readable reason in the body.
func (r responder) handleServiceError(w http.ResponseWriter, req *http.Request, err error) {
	if err == nil {
		r.writeError(w, req, http.StatusInternalServerError, codeInternal, errors.New("unknown error"))
		return
	}

	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(w, req, http.StatusForbidden, errorResponse{
			ErrorCode: codeForbidden,
			Message:   "you are not allowed to perform this operation",
		})
		return
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(w, req, http.StatusNotFound, errorResponse{ErrorCode: codeNotFound, Message: "resource not found"})
		return
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(w, req, http.StatusConflict, errorResponse{ErrorCode: codeAlreadyExists, Message: "resource already exists"})
		return
	case errors.Is(err, application.ErrInvalidTransition):
		r.writeJSON(w, req, http.StatusConflict, errorResponse{ErrorCode: codeInvalidTransition, Message: "booking cannot move to the requested status"})
		return
	case errors.Is(err, jobs.ErrRunInProgress):
		r.writeJSON(w, req, http.StatusConflict, errorResponse{ErrorCode: codeJobRunning, Message: "a materialization run is already in progress"})
		return
	}

	var conflictErr *application.ConflictError
	if errors.As(err, &conflictErr) {
		code := codeConflict
		var raceErr *application.RaceLostError
		if errors.As(err, &raceErr) {
			code = codeRaceLost
		}
		r.writeJSON(w, req, http.StatusConflict, errorResponse{
			ErrorCode: code,
			Message:   conflictErr.Error(),
			Reason:    string(conflictErr.Reason()),
			Conflict:  toConflictDTO(conflictErr),
		})
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(w, req, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: codeValidation,
			Message:   "request validation failed",
			Reason:    string(vErr.Reason),
			Errors:    vErr.FieldErrors,
		})
		return
	}

	r.loggerFor(req.Context()).ErrorContext(req.Context(), "unexpected service error", logging.Err(err), "error_kind", application.ErrorKind(err))
	r.writeJSON(w, req, http.StatusInternalServerError, errorResponse{ErrorCode: codeInternal, Message: "internal server error"})
}

// rejectRequest answers 400 for undecodable bodies and maps everything else
// through handleServiceError.
func (r responder) rejectRequest(w http.ResponseWriter, req *http.Request, logger *slog.Logger, err error) {
	if errors.Is(err, errBadRequestBody) {
		logger.InfoContext(req.Context(), "failed to decode request", "error", err, "error_kind", "bad_request")
		r.writeError(w, req, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
		return
	}
	r.handleServiceError(w, req, err)
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	return logging.Resolve(ctx, r.logger)
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Reason    string            `json:"reason,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	Conflict  *conflictDTO      `json:"conflict,omitempty"`
}

type conflictDTO struct {
	Party      string     `json:"party"`
	BookingID  string     `json:"booking_id,omitempty"`
	TemplateID string     `json:"template_id,omitempty"`
	RoomID     string     `json:"room_id,omitempty"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
}

func toConflictDTO(c *application.ConflictError) *conflictDTO {
	dto := &conflictDTO{
		Party:      string(c.Party),
		BookingID:  c.BookingID,
		TemplateID: c.TemplateID,
		RoomID:     c.RoomID,
	}
	if dto.Party == "" {
		dto.Party = "room"
	}
	if !c.Interval.Start.IsZero() {
		start, end := c.Interval.Start, c.Interval.End
		dto.Start, dto.End = &start, &end
	}
	return dto
}
