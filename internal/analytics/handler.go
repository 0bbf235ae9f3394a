package analytics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
)

// Handler exposes the reporting endpoint.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the analytics routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/analytics/report", h.handleReport)
}

// handleReport serves GET /analytics/report?from=YYYY-MM-DD&to=YYYY-MM-DD
// &group_by=service|ministry|combined. group_by defaults to combined.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	from, err := time.ParseInLocation("2006-01-02", query.Get("from"), time.UTC)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "from must be YYYY-MM-DD"))
		return
	}
	to, err := time.ParseInLocation("2006-01-02", query.Get("to"), time.UTC)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "to must be YYYY-MM-DD"))
		return
	}

	groupBy := id.GroupBy(query.Get("group_by"))
	if groupBy == "" {
		groupBy = id.GroupByCombined
	}

	report, err := h.service.Report(ctx, from, to, groupBy)
	if err != nil {
		h.logger.WarnContext(ctx, "analytics report failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}
