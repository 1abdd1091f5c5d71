package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/room-timetable/internal/application"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/scheduler"
	"github.com/example/room-timetable/internal/timetable"
)

type timetableService interface {
	GetEffectiveTimetable(ctx context.Context, roomID string, weekStart time.Time) ([]timetable.Slot, error)
	CheckSlotAvailability(ctx context.Context, roomID string, interval scheduler.Interval, excludeBookingID string) (bool, error)
}

// TimetableHandler serves the read side: merged timetables and availability.
type TimetableHandler struct {
	service   timetableService
	engine    *recurrence.Engine
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

// NewTimetableHandler builds a handler resolving week parameters with engine.
func NewTimetableHandler(service timetableService, engine *recurrence.Engine, logger *slog.Logger) *TimetableHandler {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	base := defaultLogger(logger)
	return &TimetableHandler{service: service, engine: engine, now: time.Now, responder: newResponder(base), logger: base}
}

// Timetable handles GET /rooms/{roomID}/timetable?week=YYYY-MM-DD. Without a
// week parameter the current week is returned; hide_cancelled=true drops
// cancelled template occurrences.
func (h *TimetableHandler) Timetable(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	logger := handlerLogger(r.Context(), h.logger, "TimetableHandler", "Timetable", "room_id", roomID)
	query := r.URL.Query()

	week, err := h.parseWeekParam(query.Get("week"))
	if err != nil {
		h.responder.handleServiceError(w, r, fieldError("week", "week must be a date formatted YYYY-MM-DD"))
		return
	}
	hideCancelled := false
	if raw := strings.TrimSpace(query.Get("hide_cancelled")); raw != "" {
		if hideCancelled, err = strconv.ParseBool(raw); err != nil {
			h.responder.handleServiceError(w, r, fieldError("hide_cancelled", "hide_cancelled must be true or false"))
			return
		}
	}

	slots, err := h.service.GetEffectiveTimetable(r.Context(), roomID, week)
	if err != nil {
		logger.InfoContext(r.Context(), "timetable request failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	if hideCancelled {
		slots = timetable.Visible(slots)
	}

	out := make([]slotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, toSlotDTO(slot))
	}
	h.responder.writeJSON(w, r, http.StatusOK, timetableResponse{
		RoomID:    roomID,
		WeekStart: week.Format(dateLayout),
		Slots:     out,
	})
}

// Availability handles GET /rooms/{roomID}/availability.
func (h *TimetableHandler) Availability(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	logger := handlerLogger(r.Context(), h.logger, "TimetableHandler", "Availability", "room_id", roomID)

	query := r.URL.Query()
	start, startErr := time.Parse(time.RFC3339, query.Get("start"))
	end, endErr := time.Parse(time.RFC3339, query.Get("end"))
	if startErr != nil || endErr != nil {
		vErr := &application.ValidationError{Reason: application.ReasonInvalidInput, FieldErrors: map[string]string{}}
		if startErr != nil {
			vErr.FieldErrors["start"] = "start must be an RFC 3339 timestamp"
		}
		if endErr != nil {
			vErr.FieldErrors["end"] = "end must be an RFC 3339 timestamp"
		}
		h.responder.handleServiceError(w, r, vErr)
		return
	}

	exclude := strings.TrimSpace(query.Get("exclude"))
	available, err := h.service.CheckSlotAvailability(r.Context(), roomID, scheduler.NewInterval(start, end), exclude)
	if err != nil {
		logger.InfoContext(r.Context(), "availability check failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	h.responder.writeJSON(w, r, http.StatusOK, availabilityResponse{
		RoomID:    roomID,
		Start:     start,
		End:       end,
		Available: available,
	})
}

const dateLayout = "2006-01-02"

// parseWeekParam parses a civil date in the engine location. An empty value
// means the current week; the service rejects dates that are not Mondays.
func (h *TimetableHandler) parseWeekParam(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return h.engine.WeekStart(h.now()), nil
	}
	return time.ParseInLocation(dateLayout, value, h.engine.Location())
}

func fieldError(field, message string) *application.ValidationError {
	return &application.ValidationError{
		Reason:      application.ReasonInvalidInput,
		FieldErrors: map[string]string{field: message},
	}
}

type timetableResponse struct {
	RoomID    string    `json:"room_id"`
	WeekStart string    `json:"week_start"`
	Slots     []slotDTO `json:"slots"`
}

type slotDTO struct {
	Kind               string    `json:"kind"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	Title              string    `json:"title"`
	OwnerOrTeacherName string    `json:"owner_or_teacher_name,omitempty"`
	OwnerID            string    `json:"owner_id,omitempty"`
	BookingID          string    `json:"booking_id,omitempty"`
	TemplateID         string    `json:"template_id,omitempty"`
	WeekStart          string    `json:"week_start,omitempty"`
	Cancelled          bool      `json:"cancelled"`
	CancelReason       string    `json:"cancel_reason,omitempty"`
}

func toSlotDTO(slot timetable.Slot) slotDTO {
	dto := slotDTO{
		Kind:               string(slot.Kind),
		Start:              slot.Interval.Start,
		End:                slot.Interval.End,
		Title:              slot.Title,
		OwnerOrTeacherName: slot.OwnerOrTeacherName,
		OwnerID:            slot.OwnerID,
		BookingID:          slot.BookingID,
		TemplateID:         slot.TemplateID,
		Cancelled:          slot.Cancelled,
		CancelReason:       slot.CancelReason,
	}
	if !slot.WeekStart.IsZero() {
		dto.WeekStart = slot.WeekStart.Format(dateLayout)
	}
	return dto
}

type availabilityResponse struct {
	RoomID    string    `json:"room_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}
