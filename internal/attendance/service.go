// Package attendance is the online check-in surface: it glues token
// verification, replay protection, member lookup, session resolution, and
// the ledger into the single operation a scanning station calls.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flock/internal/ledger"
	"flock/internal/member"
	"flock/internal/session"
	"flock/internal/token"
	"flock/internal/token/replay"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

var tracer = otel.Tracer("flock/internal/attendance")

// replayGrace keeps a consumed nonce on record a little past token expiry
// so a late duplicate of an already-expired token still bounces.
const replayGrace = time.Minute

// CheckInInput is one scan at a station.
type CheckInInput struct {
	Token       string
	ServiceDate time.Time
	ServiceType id.ServiceType
	MinistryID  string
	Status      id.AttendanceStatus
	FirstTimer  bool
	// MarkedAt is the client-observed instant. Zero means "now"; the sync
	// path always sets it to the original offline timestamp.
	MarkedAt time.Time
}

// CheckInResult pairs the recorded mark with the refreshed session
// summary so stations can display a live headcount.
type CheckInResult struct {
	Mark    *ledger.AttendeeMark
	Member  member.Profile
	Session *session.ServiceSession
	Summary ledger.Summary
}

// Service runs the check-in pipeline.
type Service struct {
	tokens   *token.Service
	guard    replay.Guard
	members  member.Lookup
	sessions session.Store
	ledger   *ledger.Service
	logger   *slog.Logger
}

func NewService(
	tokens *token.Service,
	guard replay.Guard,
	members member.Lookup,
	sessions session.Store,
	ledgerSvc *ledger.Service,
	logger *slog.Logger,
) (*Service, error) {
	if tokens == nil || guard == nil || members == nil || sessions == nil || ledgerSvc == nil {
		return nil, fmt.Errorf("attendance service requires tokens, guard, members, sessions, and ledger")
	}
	return &Service{
		tokens:   tokens,
		guard:    guard,
		members:  members,
		sessions: sessions,
		ledger:   ledgerSvc,
		logger:   logger,
	}, nil
}

// CheckIn verifies the presented token, burns its nonce, and records the
// mark. Each stage fails with a distinct code so stations can show the
// right prompt: refresh the code, re-register the member, or retry.
func (s *Service) CheckIn(ctx context.Context, input CheckInInput) (*CheckInResult, error) {
	ctx, span := tracer.Start(ctx, "attendance.CheckIn", trace.WithAttributes(
		attribute.String("service_type", string(input.ServiceType)),
	))
	defer span.End()

	now := requestcontext.Now(ctx)

	verified, err := s.tokens.Verify(input.Token, now)
	if err != nil {
		return nil, err
	}

	ttl := verified.ExpiresAt.Sub(now) + replayGrace
	if err := s.guard.Consume(ctx, verified.Nonce, ttl); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeTokenInvalid, "token already used")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "replay check failed")
	}

	markedAt := input.MarkedAt
	if markedAt.IsZero() {
		markedAt = now
	}
	return s.record(ctx, verified.MemberID, input, markedAt)
}

// SubmitSynced records a mark replayed from an offline queue. The token is
// re-verified against the sweep time, but the nonce is not burned: the
// offline round already consumed the physical scan, and retried batches
// must stay idempotent.
func (s *Service) SubmitSynced(ctx context.Context, input CheckInInput) (*CheckInResult, error) {
	if input.MarkedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "synced marks must carry their original timestamp")
	}

	verified, err := s.tokens.Verify(input.Token, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	return s.record(ctx, verified.MemberID, input, input.MarkedAt)
}

// SubmitReauthenticated records a synced mark whose token has expired but
// whose member identity was confirmed through a secondary authenticated
// channel. The token is deliberately not consulted; the confirmation
// stands in for it.
func (s *Service) SubmitReauthenticated(ctx context.Context, memberID id.MemberID, input CheckInInput) (*CheckInResult, error) {
	if input.MarkedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "synced marks must carry their original timestamp")
	}
	if memberID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "member_id is required")
	}
	return s.record(ctx, memberID, input, input.MarkedAt)
}

func (s *Service) record(ctx context.Context, memberID id.MemberID, input CheckInInput, markedAt time.Time) (*CheckInResult, error) {
	profile, err := s.members.Resolve(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !profile.Exists {
		return nil, dErrors.New(dErrors.CodeMemberUnknown, "member not found in directory")
	}

	key, err := session.NewKey(input.ServiceDate, input.ServiceType, input.MinistryID)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Resolve(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session resolution failed")
	}

	mark, err := s.ledger.Mark(ctx, ledger.MarkInput{
		SessionID:     sess.ID,
		MemberID:      memberID,
		Status:        input.Status,
		FirstTimer:    input.FirstTimer,
		MarkedAt:      markedAt,
		SourceStation: requestcontext.StationID(ctx),
	})
	if err != nil {
		return nil, err
	}

	summary, err := s.ledger.Summarize(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "attendance recorded",
			"session_id", sess.ID.String(),
			"status", string(mark.Status),
			"present", summary.Present,
		)
	}

	return &CheckInResult{Mark: mark, Member: profile, Session: sess, Summary: summary}, nil
}
