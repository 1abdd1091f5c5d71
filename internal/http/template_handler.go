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
)

type templateService interface {
	CreateTemplate(ctx context.Context, principal application.Principal, input application.TemplateInput) (application.Template, error)
	UpdateTemplate(ctx context.Context, principal application.Principal, templateID string, input application.TemplateInput) (application.Template, error)
	DeactivateTemplate(ctx context.Context, principal application.Principal, templateID string) (application.Template, error)
	ListTemplates(ctx context.Context, roomID string, includeInactive bool) ([]application.Template, error)
	CreateTemplateException(ctx context.Context, principal application.Principal, templateID string, weekStart time.Time, reason string) (application.TemplateException, error)
	ListExceptions(ctx context.Context, templateID string) ([]application.TemplateException, error)
}

// TemplateHandler exposes template administration and week exceptions.
type TemplateHandler struct {
	service   templateService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewTemplateHandler builds a handler parsing civil dates in loc.
func NewTemplateHandler(service templateService, loc *time.Location, logger *slog.Logger) *TemplateHandler {
	if loc == nil {
		loc = time.UTC
	}
	base := defaultLogger(logger)
	return &TemplateHandler{service: service, location: loc, responder: newResponder(base), logger: base}
}

func (h *TemplateHandler) log(r *http.Request, operation string, attrs ...any) *slog.Logger {
	principal, _ := PrincipalFromContext(r.Context())
	attrs = append(attrs, "principal_id", principal.UserID)
	return handlerLogger(r.Context(), h.logger, "TemplateHandler", operation, attrs...)
}

// List handles GET /templates?room_id=&include_inactive=.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	roomID := strings.TrimSpace(query.Get("room_id"))
	includeInactive, _ := strconv.ParseBool(query.Get("include_inactive"))

	templates, err := h.service.ListTemplates(r.Context(), roomID, includeInactive)
	if err != nil {
		h.log(r, "List", "room_id", roomID).ErrorContext(r.Context(), "template list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	out := make([]templateDTO, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, toTemplateDTO(tpl))
	}
	h.responder.writeJSON(w, r, http.StatusOK, templateListResponse{Templates: out})
}

// Create handles POST /templates.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "Create")

	input, err := h.decodeTemplate(r)
	if err != nil {
		h.responder.rejectRequest(w, r, logger, err)
		return
	}

	tpl, err := h.service.CreateTemplate(r.Context(), principal, input)
	if err != nil {
		logger.InfoContext(r.Context(), "template rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "template created", "template_id", tpl.ID)
	h.responder.writeJSON(w, r, http.StatusCreated, templateResponse{Template: toTemplateDTO(tpl)})
}

// Update handles PUT /templates/{templateID}.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	templateID := chi.URLParam(r, "templateID")
	logger := h.log(r, "Update", "template_id", templateID)

	input, err := h.decodeTemplate(r)
	if err != nil {
		h.responder.rejectRequest(w, r, logger, err)
		return
	}

	tpl, err := h.service.UpdateTemplate(r.Context(), principal, templateID, input)
	if err != nil {
		logger.InfoContext(r.Context(), "template update rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "template updated")
	h.responder.writeJSON(w, r, http.StatusOK, templateResponse{Template: toTemplateDTO(tpl)})
}

// Deactivate handles POST /templates/{templateID}/deactivate.
func (h *TemplateHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	templateID := chi.URLParam(r, "templateID")
	logger := h.log(r, "Deactivate", "template_id", templateID)

	tpl, err := h.service.DeactivateTemplate(r.Context(), principal, templateID)
	if err != nil {
		logger.InfoContext(r.Context(), "template deactivation rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "template deactivated")
	h.responder.writeJSON(w, r, http.StatusOK, templateResponse{Template: toTemplateDTO(tpl)})
}

// CreateException handles POST /templates/{templateID}/exceptions.
func (h *TemplateHandler) CreateException(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	templateID := chi.URLParam(r, "templateID")
	logger := h.log(r, "CreateException", "template_id", templateID)

	var req exceptionRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.rejectRequest(w, r, logger, err)
		return
	}
	weekStart, err := time.ParseInLocation(dateLayout, req.WeekStart, h.location)
	if err != nil {
		h.responder.handleServiceError(w, r, fieldError("week_start", "week_start must be a date formatted YYYY-MM-DD"))
		return
	}

	exception, err := h.service.CreateTemplateException(r.Context(), principal, templateID, weekStart, req.Reason)
	if err != nil {
		logger.InfoContext(r.Context(), "exception rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "exception created", "week_start", req.WeekStart)
	h.responder.writeJSON(w, r, http.StatusCreated, exceptionResponse{Exception: toExceptionDTO(exception)})
}

// ListExceptions handles GET /templates/{templateID}/exceptions.
func (h *TemplateHandler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateID")

	exceptions, err := h.service.ListExceptions(r.Context(), templateID)
	if err != nil {
		h.log(r, "ListExceptions", "template_id", templateID).ErrorContext(r.Context(), "exception list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	out := make([]exceptionDTO, 0, len(exceptions))
	for _, exception := range exceptions {
		out = append(out, toExceptionDTO(exception))
	}
	h.responder.writeJSON(w, r, http.StatusOK, exceptionListResponse{Exceptions: out})
}

func (h *TemplateHandler) decodeTemplate(r *http.Request) (application.TemplateInput, error) {
	var req templateRequest
	if err := decodeRequest(r, &req); err != nil {
		return application.TemplateInput{}, err
	}
	return req.toInput(h.location)
}

type templateRequest struct {
	RoomID              string `json:"room_id" validate:"required,max=64"`
	TeacherName         string `json:"teacher_name" validate:"required,max=200"`
	Title               string `json:"title" validate:"required,max=200"`
	Weekday             int    `json:"weekday" validate:"gte=0,lte=6"`
	StartTime           string `json:"start_time" validate:"required,datetime=15:04"`
	DurationMinutes     int    `json:"duration_minutes" validate:"gte=1"`
	RepeatIntervalWeeks int    `json:"repeat_interval_weeks" validate:"gte=1"`
	EffectiveFrom       string `json:"effective_from" validate:"required,datetime=2006-01-02"`
	Notes               string `json:"notes,omitempty" validate:"max=2000"`
}

func (req templateRequest) toInput(loc *time.Location) (application.TemplateInput, error) {
	startMinute, err := application.ParseClock(req.StartTime)
	if err != nil {
		return application.TemplateInput{}, fieldError("start_time", "start_time must be formatted HH:MM")
	}
	effectiveFrom, err := time.ParseInLocation(dateLayout, req.EffectiveFrom, loc)
	if err != nil {
		return application.TemplateInput{}, fieldError("effective_from", "effective_from must be a date formatted YYYY-MM-DD")
	}
	return application.TemplateInput{
		RoomID:              req.RoomID,
		TeacherName:         req.TeacherName,
		Title:               req.Title,
		Weekday:             req.Weekday,
		StartMinute:         startMinute,
		DurationMinutes:     req.DurationMinutes,
		RepeatIntervalWeeks: req.RepeatIntervalWeeks,
		EffectiveFrom:       effectiveFrom,
		Notes:               req.Notes,
	}, nil
}

type exceptionRequest struct {
	WeekStart string `json:"week_start" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason,omitempty" validate:"max=500"`
}

type templateResponse struct {
	Template templateDTO `json:"template"`
}

type templateListResponse struct {
	Templates []templateDTO `json:"templates"`
}

type templateDTO struct {
	ID                  string    `json:"id"`
	RoomID              string    `json:"room_id"`
	TeacherName         string    `json:"teacher_name"`
	Title               string    `json:"title"`
	Weekday             int       `json:"weekday"`
	StartTime           string    `json:"start_time"`
	DurationMinutes     int       `json:"duration_minutes"`
	RepeatIntervalWeeks int       `json:"repeat_interval_weeks"`
	EffectiveFrom       string    `json:"effective_from"`
	Active              bool      `json:"active"`
	Notes               string    `json:"notes,omitempty"`
	CreatedBy           string    `json:"created_by"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toTemplateDTO(t application.Template) templateDTO {
	return templateDTO{
		ID:                  t.ID,
		RoomID:              t.RoomID,
		TeacherName:         t.TeacherName,
		Title:               t.Title,
		Weekday:             t.Weekday,
		StartTime:           application.FormatClock(t.StartMinute),
		DurationMinutes:     t.DurationMinutes,
		RepeatIntervalWeeks: t.RepeatIntervalWeeks,
		EffectiveFrom:       t.EffectiveFrom.Format(dateLayout),
		Active:              t.Active,
		Notes:               t.Notes,
		CreatedBy:           t.CreatedBy,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

type exceptionResponse struct {
	Exception exceptionDTO `json:"exception"`
}

type exceptionListResponse struct {
	Exceptions []exceptionDTO `json:"exceptions"`
}

type exceptionDTO struct {
	ID                string    `json:"id"`
	TemplateID        string    `json:"template_id"`
	WeekStart         string    `json:"week_start"`
	Reason            string    `json:"reason,omitempty"`
	ResolvedBookingID string    `json:"resolved_booking_id,omitempty"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

func toExceptionDTO(e application.TemplateException) exceptionDTO {
	return exceptionDTO{
		ID:                e.ID,
		TemplateID:        e.TemplateID,
		WeekStart:         e.WeekStart.Format(dateLayout),
		Reason:            e.Reason,
		ResolvedBookingID: e.ResolvedBookingID,
		CreatedBy:         e.CreatedBy,
		CreatedAt:         e.CreatedAt,
	}
}
