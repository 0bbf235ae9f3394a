package attendance

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"flock/internal/ledger"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
	"flock/pkg/requestcontext"
)

// Handler exposes the station-facing check-in endpoints.
type Handler struct {
	service *Service
	ledger  *ledger.Service
	logger  *slog.Logger
}

func NewHandler(service *Service, ledgerSvc *ledger.Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, ledger: ledgerSvc, logger: logger}
}

// Register mounts the attendance routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/attendance/mark", h.handleMark)
	r.Post("/attendance/sync", h.handleSync)
	r.Get("/attendance/sessions/{sessionID}", h.handleGetSession)
}

type markRequest struct {
	Token       string `json:"token"`
	ServiceDate string `json:"service_date"`
	ServiceType string `json:"service_type"`
	MinistryID  string `json:"ministry_id,omitempty"`
	Status      string `json:"status"`
	FirstTimer  bool   `json:"first_timer,omitempty"`
	MarkedAt    string `json:"marked_at,omitempty"`
}

type markResponse struct {
	MarkID      string         `json:"mark_id"`
	SessionID   string         `json:"session_id"`
	MemberID    string         `json:"member_id"`
	DisplayName string         `json:"display_name"`
	Status      string         `json:"status"`
	FirstTimer  bool           `json:"first_timer"`
	MarkedAt    time.Time      `json:"marked_at"`
	Summary     ledger.Summary `json:"summary"`
}

func (h *Handler) handleMark(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.service.CheckIn)
}

// handleSync accepts marks replayed from station offline queues. Same
// wire shape as /attendance/mark, but marked_at is mandatory and the
// token's nonce is not burned.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.service.SubmitSynced)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, op func(context.Context, CheckInInput) (*CheckInResult, error)) {
	ctx := r.Context()

	input, ok := h.decodeMark(w, r)
	if !ok {
		return
	}

	result, err := op(ctx, input)
	if err != nil {
		h.logger.WarnContext(ctx, "check-in rejected",
			"request_id", requestcontext.RequestID(ctx),
			"code", dErrors.CodeOf(err),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, markResponse{
		MarkID:      result.Mark.ID.String(),
		SessionID:   result.Session.ID.String(),
		MemberID:    result.Mark.MemberID.String(),
		DisplayName: result.Member.DisplayName,
		Status:      string(result.Mark.Status),
		FirstTimer:  result.Mark.FirstTimer,
		MarkedAt:    result.Mark.MarkedAt,
		Summary:     result.Summary,
	})
}

func (h *Handler) decodeMark(w http.ResponseWriter, r *http.Request) (CheckInInput, bool) {
	req, ok := httputil.Decode[markRequest](w, r, h.logger)
	if !ok {
		return CheckInInput{}, false
	}

	serviceDate, err := time.ParseInLocation("2006-01-02", req.ServiceDate, time.UTC)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "service_date must be YYYY-MM-DD"))
		return CheckInInput{}, false
	}

	var markedAt time.Time
	if req.MarkedAt != "" {
		markedAt, err = time.Parse(time.RFC3339, req.MarkedAt)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "marked_at must be RFC 3339"))
			return CheckInInput{}, false
		}
	}

	return CheckInInput{
		Token:       req.Token,
		ServiceDate: serviceDate,
		ServiceType: id.ServiceType(req.ServiceType),
		MinistryID:  req.MinistryID,
		Status:      id.AttendanceStatus(req.Status),
		FirstTimer:  req.FirstTimer,
		MarkedAt:    markedAt,
	}, true
}

type sessionResponse struct {
	SessionID string         `json:"session_id"`
	Marks     []sessionMark  `json:"marks"`
	Summary   ledger.Summary `json:"summary"`
}

type sessionMark struct {
	MemberID   string    `json:"member_id"`
	Status     string    `json:"status"`
	FirstTimer bool      `json:"first_timer"`
	MarkedAt   time.Time `json:"marked_at"`
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid session id"))
		return
	}

	marks, err := h.ledger.Get(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := sessionResponse{
		SessionID: sessionID.String(),
		Marks:     make([]sessionMark, 0, len(marks)),
		Summary:   ledger.Summarize(marks),
	}
	for _, mark := range marks {
		resp.Marks = append(resp.Marks, sessionMark{
			MemberID:   mark.MemberID.String(),
			Status:     string(mark.Status),
			FirstTimer: mark.FirstTimer,
			MarkedAt:   mark.MarkedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
