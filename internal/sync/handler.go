package sync

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
)

// Handler exposes the operator queue to staff tooling.
type Handler struct {
	operator OperatorStore
	logger   *slog.Logger
}

func NewHandler(operator OperatorStore, logger *slog.Logger) *Handler {
	return &Handler{operator: operator, logger: logger}
}

// Register mounts the operator queue routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/sync/operator-queue", h.handleList)
	r.Post("/sync/operator-queue", h.handlePark)
	r.Post("/sync/operator-queue/{entryID}/resolve", h.handleResolve)
}

type parkRequest struct {
	LocalID    string    `json:"local_id"`
	StationID  string    `json:"station_id"`
	MemberID   string    `json:"member_id"`
	SessionKey string    `json:"session_key"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
	MarkedAt   time.Time `json:"marked_at"`
}

// handlePark accepts escalations from station-resident sync engines so
// parked marks land in the shared operator queue, not on the station's
// local disk.
func (h *Handler) handlePark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[parkRequest](w, r, h.logger)
	if !ok {
		return
	}

	stationID, err := id.ParseStationID(req.StationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	memberID, err := id.ParseMemberID(req.MemberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.LocalID == "" || req.Reason == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "local_id and reason are required"))
		return
	}

	err = h.operator.Park(ctx, OperatorEntry{
		LocalID:    req.LocalID,
		StationID:  stationID,
		MemberID:   memberID,
		SessionKey: req.SessionKey,
		Status:     id.AttendanceStatus(req.Status),
		Reason:     req.Reason,
		Detail:     req.Detail,
		MarkedAt:   req.MarkedAt,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "operator park failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "operator queue unavailable"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type operatorEntryResponse struct {
	ID         string    `json:"id"`
	StationID  string    `json:"station_id"`
	MemberID   string    `json:"member_id"`
	SessionKey string    `json:"session_key"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
	MarkedAt   time.Time `json:"marked_at"`
	ParkedAt   time.Time `json:"parked_at"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.operator.ListOpen(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "operator queue listing failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "operator queue unavailable"))
		return
	}

	out := make([]operatorEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, operatorEntryResponse{
			ID:         entry.ID.String(),
			StationID:  entry.StationID.String(),
			MemberID:   entry.MemberID.String(),
			SessionKey: entry.SessionKey,
			Status:     string(entry.Status),
			Reason:     entry.Reason,
			Detail:     entry.Detail,
			MarkedAt:   entry.MarkedAt,
			ParkedAt:   entry.ParkedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entryID, err := id.ParseMarkID(chi.URLParam(r, "entryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid entry id"))
		return
	}

	if err := h.operator.Resolve(ctx, entryID); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "operator entry not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
