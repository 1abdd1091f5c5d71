package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/room-timetable/internal/application"
)

type materializationTrigger interface {
	RunOnce(ctx context.Context) (application.MaterializationReport, error)
}

// JobHandler lets administrators trigger background work on demand.
type JobHandler struct {
	materializer materializationTrigger
	responder    responder
	logger       *slog.Logger
}

func NewJobHandler(materializer materializationTrigger, logger *slog.Logger) *JobHandler {
	base := defaultLogger(logger)
	return &JobHandler{materializer: materializer, responder: newResponder(base), logger: base}
}

// Materialize handles POST /jobs/materialize. Admin only.
func (h *JobHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	logger := handlerLogger(r.Context(), h.logger, "JobHandler", "Materialize", "principal_id", principal.UserID)

	if !principal.IsAdmin {
		logger.InfoContext(r.Context(), "materialization trigger rejected", "error_kind", "unauthorized")
		h.responder.handleServiceError(w, r, application.ErrUnauthorized)
		return
	}

	report, err := h.materializer.RunOnce(r.Context())
	if err != nil {
		logger.WarnContext(r.Context(), "materialization trigger failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	h.responder.writeJSON(w, r, http.StatusOK, toReportDTO(report))
}

type reportDTO struct {
	Weeks               []string     `json:"weeks"`
	Created             int          `json:"created"`
	AlreadyMaterialized int          `json:"already_materialized"`
	Cancelled           int          `json:"cancelled"`
	NotEligible         int          `json:"not_eligible"`
	Failures            []failureDTO `json:"failures,omitempty"`
	Errors              int          `json:"errors"`
}

type failureDTO struct {
	TemplateID string `json:"template_id"`
	WeekStart  string `json:"week_start"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
}

func toReportDTO(report application.MaterializationReport) reportDTO {
	dto := reportDTO{
		Weeks:               make([]string, 0, len(report.Weeks)),
		Created:             report.Created,
		AlreadyMaterialized: report.AlreadyMaterialized,
		Cancelled:           report.Cancelled,
		NotEligible:         report.NotEligible,
		Errors:              len(report.Errors),
	}
	for _, week := range report.Weeks {
		dto.Weeks = append(dto.Weeks, week.Format(dateLayout))
	}
	for _, failure := range report.Failures {
		if failure == nil {
			continue
		}
		dto.Failures = append(dto.Failures, failureDTO{
			TemplateID: failure.TemplateID,
			WeekStart:  failure.WeekStart.Format(dateLayout),
			Reason:     string(failure.Reason),
			Detail:     failure.Detail,
		})
	}
	return dto
}
