package token

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"flock/internal/member"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
	"flock/pkg/requestcontext"
)

// Handler exposes token issuance for the member app.
type Handler struct {
	service *Service
	members member.Lookup
	logger  *slog.Logger
}

func NewHandler(service *Service, members member.Lookup, logger *slog.Logger) *Handler {
	return &Handler{service: service, members: members, logger: logger}
}

// Register mounts the token routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/tokens/issue", h.handleIssue)
}

type issueRequest struct {
	MemberID string `json:"member_id"`
}

type issueResponse struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[issueRequest](w, r, h.logger)
	if !ok {
		return
	}

	memberID, err := id.ParseMemberID(req.MemberID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid member id"))
		return
	}

	if err := h.requireMember(ctx, memberID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	issued, err := h.service.Issue(memberID, requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "token issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, issueResponse{
		Token:     issued.Raw,
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
	})
}

// requireMember blocks issuance for identities the directory does not
// know. Tokens certify membership; minting one for a ghost would let the
// check-in path vouch for someone the church never registered.
func (h *Handler) requireMember(ctx context.Context, memberID id.MemberID) error {
	profile, err := h.members.Resolve(ctx, memberID)
	if err != nil {
		return err
	}
	if !profile.Exists {
		return dErrors.New(dErrors.CodeMemberUnknown, "member not found in directory")
	}
	return nil
}
