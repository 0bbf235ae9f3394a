package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"flock/internal/events"
	"flock/internal/ledger/metrics"
	"flock/internal/session"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

var tracer = otel.Tracer("flock/internal/ledger")

// EventPublisher is the narrow slice of the events publisher the ledger
// needs; the in-process stream is best-effort.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) bool
}

// Service wraps the mark store with validation, summary computation, and
// change-event publication.
type Service struct {
	store     Store
	sessions  session.Store
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the service.
type Option func(*Service)

// WithPublisher attaches the change-event publisher.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs the ledger service.
func NewService(store Store, sessions session.Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	svc := &Service{store: store, sessions: sessions, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Mark validates and applies one mark mutation through the atomic upsert.
// Losing a last-write-wins race is not an error: the surviving mark comes
// back and the caller cannot tell it apart from its own write landing,
// which is exactly the idempotence the offline sync path relies on.
func (s *Service) Mark(ctx context.Context, input MarkInput) (*AttendeeMark, error) {
	ctx, span := tracer.Start(ctx, "ledger.Mark", trace.WithAttributes(
		attribute.String("session_id", input.SessionID.String()),
		attribute.String("status", string(input.Status)),
	))
	defer span.End()

	if err := validateInput(input); err != nil {
		return nil, err
	}

	start := time.Now()
	mark, outcome, err := s.store.Upsert(ctx, input)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger write failed")
	}
	if s.metrics != nil {
		s.metrics.ObserveUpsert(string(outcome), float64(time.Since(start).Microseconds())/1000.0)
	}

	if outcome != OutcomeStale && s.publisher != nil {
		kind := events.KindMarkUpdated
		if outcome == OutcomeInserted {
			kind = events.KindMarkCreated
		}
		if !s.publisher.Emit(ctx, events.Event{
			Kind:          kind,
			MarkID:        mark.ID,
			SessionID:     mark.SessionID,
			MemberID:      mark.MemberID,
			Status:        mark.Status,
			FirstTimer:    mark.FirstTimer,
			MarkedAt:      mark.MarkedAt,
			SourceStation: mark.SourceStation,
		}) {
			s.logger.WarnContext(ctx, "mark event dropped, inbox full",
				"mark_id", mark.ID.String(),
			)
		}
	}

	return mark, nil
}

// Get returns all marks for a session. Unknown sessions are a not-found,
// distinguishing them from a known session nobody has marked yet.
func (s *Service) Get(ctx context.Context, sessionID id.SessionID) ([]*AttendeeMark, error) {
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "session not found")
	}
	marks, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger read failed")
	}
	return marks, nil
}

// Query returns marks grouped by session for the date range, optionally
// filtered by service type. Read-only; safe to run concurrently with
// ongoing marks.
func (s *Service) Query(ctx context.Context, from, to time.Time, serviceType id.ServiceType) ([]*SessionMarks, error) {
	ctx, span := tracer.Start(ctx, "ledger.Query")
	defer span.End()

	if to.Before(from) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "date range end precedes start")
	}

	sessions, err := s.sessions.ListRange(ctx, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session listing failed")
	}

	var (
		filtered   []*session.ServiceSession
		sessionIDs []id.SessionID
	)
	for _, sess := range sessions {
		if serviceType != "" && sess.Key.ServiceType != serviceType {
			continue
		}
		filtered = append(filtered, sess)
		sessionIDs = append(sessionIDs, sess.ID)
	}

	marksBySession, err := s.store.ListBySessions(ctx, sessionIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger read failed")
	}

	out := make([]*SessionMarks, 0, len(filtered))
	for _, sess := range filtered {
		out = append(out, &SessionMarks{
			SessionID:   sess.ID,
			Date:        sess.Key.Date,
			ServiceType: sess.Key.ServiceType,
			MinistryID:  sess.Key.MinistryID,
			Marks:       marksBySession[sess.ID],
		})
	}
	return out, nil
}

// Summarize computes the session-level aggregate returned with each mark
// response.
func (s *Service) Summarize(ctx context.Context, sessionID id.SessionID) (Summary, error) {
	marks, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return Summary{}, dErrors.Wrap(err, dErrors.CodeInternal, "ledger read failed")
	}
	return Summarize(marks), nil
}

// Summarize folds marks into the session summary. Rate is percent present
// of total marks; an unmarked session has rate 0, not NaN.
func Summarize(marks []*AttendeeMark) Summary {
	summary := Summary{Total: len(marks)}
	for _, mark := range marks {
		switch mark.Status {
		case id.StatusPresent:
			summary.Present++
		case id.StatusAbsent:
			summary.Absent++
		}
	}
	if summary.Total > 0 {
		summary.Rate = float64(summary.Present) / float64(summary.Total) * 100
	}
	return summary
}

func validateInput(input MarkInput) error {
	if input.SessionID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "session_id is required")
	}
	if input.MemberID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "member_id is required")
	}
	if !input.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "status must be one of present, absent, excused")
	}
	if input.MarkedAt.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "marked_at is required")
	}
	return nil
}
