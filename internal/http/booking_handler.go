package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/room-timetable/internal/application"
)

type bookingService interface {
	TryBook(ctx context.Context, req application.BookingRequest) (application.Booking, error)
	UpdateBooking(ctx context.Context, upd application.BookingUpdate) (application.Booking, error)
	ApproveBooking(ctx context.Context, principal application.Principal, bookingID string) (application.Booking, error)
	DenyBooking(ctx context.Context, principal application.Principal, bookingID string) (application.Booking, error)
	CancelBooking(ctx context.Context, principal application.Principal, bookingID string) (application.Booking, error)
	DeleteBooking(ctx context.Context, principal application.Principal, bookingID string) error
}

type occurrenceCanceller interface {
	CancelMaterializedOccurrence(ctx context.Context, principal application.Principal, bookingID, reason string) (application.TemplateException, error)
}

// BookingHandler exposes booking admission and lifecycle transitions.
type BookingHandler struct {
	service     bookingService
	occurrences occurrenceCanceller
	responder   responder
	logger      *slog.Logger
}

// NewBookingHandler wires the admission service. occurrences may be nil, in
// which case cancel-occurrence answers 404.
func NewBookingHandler(service bookingService, occurrences occurrenceCanceller, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, occurrences: occurrences, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(r *http.Request, operation string, attrs ...any) *slog.Logger {
	principal, _ := PrincipalFromContext(r.Context())
	attrs = append(attrs, "principal_id", principal.UserID)
	return handlerLogger(r.Context(), h.logger, "BookingHandler", operation, attrs...)
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "Create")

	var req bookingRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.rejectRequest(w, r, logger, err)
		return
	}

	booking, err := h.service.TryBook(r.Context(), application.BookingRequest{
		Principal: principal,
		RoomID:    req.RoomID,
		OwnerID:   req.OwnerID,
		Title:     req.Title,
		Notes:     req.Notes,
		Start:     req.Start,
		End:       req.End,
	})
	if err != nil {
		logger.InfoContext(r.Context(), "booking rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "booking created", "booking_id", booking.ID, "status", booking.Status)
	h.responder.writeJSON(w, r, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

// Update handles PUT /bookings/{bookingID}.
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "bookingID")
	logger := h.log(r, "Update", "booking_id", bookingID)

	var req bookingUpdateRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.rejectRequest(w, r, logger, err)
		return
	}

	booking, err := h.service.UpdateBooking(r.Context(), application.BookingUpdate{
		Principal: principal,
		BookingID: bookingID,
		Title:     req.Title,
		Notes:     req.Notes,
		Start:     req.Start,
		End:       req.End,
	})
	if err != nil {
		logger.InfoContext(r.Context(), "booking update rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "booking updated")
	h.responder.writeJSON(w, r, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

// Approve handles POST /bookings/{bookingID}/approve.
func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Approve", h.service.ApproveBooking)
}

// Deny handles POST /bookings/{bookingID}/deny.
func (h *BookingHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Deny", h.service.DenyBooking)
}

// Cancel handles POST /bookings/{bookingID}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Cancel", h.service.CancelBooking)
}

type transitionFunc func(ctx context.Context, principal application.Principal, bookingID string) (application.Booking, error)

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, operation string, fn transitionFunc) {
	principal, _ := PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "bookingID")
	logger := h.log(r, operation, "booking_id", bookingID)

	booking, err := fn(r.Context(), principal, bookingID)
	if err != nil {
		logger.InfoContext(r.Context(), "booking transition rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "booking transitioned", "status", booking.Status)
	h.responder.writeJSON(w, r, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

// Delete handles DELETE /bookings/{bookingID}.
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "bookingID")
	logger := h.log(r, "Delete", "booking_id", bookingID)

	if err := h.service.DeleteBooking(r.Context(), principal, bookingID); err != nil {
		logger.InfoContext(r.Context(), "booking delete rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "booking deleted")
	h.responder.writeJSON(w, r, http.StatusNoContent, nil)
}

// CancelOccurrence handles POST /bookings/{bookingID}/cancel-occurrence.
func (h *BookingHandler) CancelOccurrence(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	bookingID := chi.URLParam(r, "bookingID")
	logger := h.log(r, "CancelOccurrence", "booking_id", bookingID)

	if h.occurrences == nil {
		h.responder.handleServiceError(w, r, application.ErrNotFound)
		return
	}

	var req reasonRequest
	if r.ContentLength != 0 {
		if err := decodeRequest(r, &req); err != nil {
			h.responder.rejectRequest(w, r, logger, err)
			return
		}
	}

	exception, err := h.occurrences.CancelMaterializedOccurrence(r.Context(), principal, bookingID, req.Reason)
	if err != nil {
		logger.InfoContext(r.Context(), "occurrence cancellation rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "occurrence cancelled", "template_id", exception.TemplateID)
	h.responder.writeJSON(w, r, http.StatusOK, exceptionResponse{Exception: toExceptionDTO(exception)})
}

type bookingRequest struct {
	RoomID  string    `json:"room_id" validate:"required,max=64"`
	OwnerID string    `json:"owner_id,omitempty" validate:"omitempty,max=64"`
	Title   string    `json:"title" validate:"required,max=200"`
	Notes   string    `json:"notes,omitempty" validate:"max=2000"`
	Start   time.Time `json:"start" validate:"required"`
	End     time.Time `json:"end" validate:"required"`
}

type bookingUpdateRequest struct {
	Title string    `json:"title" validate:"required,max=200"`
	Notes *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

type bookingDTO struct {
	ID               string    `json:"id"`
	RoomID           string    `json:"room_id"`
	OwnerID          string    `json:"owner_id"`
	Title            string    `json:"title"`
	Notes            string    `json:"notes,omitempty"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Status           string    `json:"status"`
	TemplateID       string    `json:"template_id,omitempty"`
	GeneratedForWeek string    `json:"generated_for_week,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toBookingDTO(b application.Booking) bookingDTO {
	dto := bookingDTO{
		ID:         b.ID,
		RoomID:     b.RoomID,
		OwnerID:    b.OwnerID,
		Title:      b.Title,
		Notes:      b.Notes,
		Start:      b.Start,
		End:        b.End,
		Status:     string(b.Status),
		TemplateID: b.TemplateID,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
	if !b.GeneratedForWeek.IsZero() {
		dto.GeneratedForWeek = b.GeneratedForWeek.Format(dateLayout)
	}
	return dto
}
