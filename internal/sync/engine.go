// Package sync drains station offline queues into the attendance ledger
// once connectivity returns. Each pending mark walks a small state
// machine: queued, sending, then either acknowledged (removed) or
// terminally rejected (parked for an operator). Nothing leaves the queue
// without one of those two outcomes.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flock/internal/attendance"
	"flock/internal/offline"
	"flock/internal/session"
	syncmetrics "flock/internal/sync/metrics"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/requestcontext"
)

const (
	defaultBatchSize   = 25
	defaultMaxAttempts = 5
	defaultInterval    = 30 * time.Second
	defaultBaseBackoff = 2 * time.Second
	defaultMaxBackoff  = 5 * time.Minute
)

// Submitter is the server-side surface the engine forwards marks to.
type Submitter interface {
	SubmitSynced(ctx context.Context, input attendance.CheckInInput) (*attendance.CheckInResult, error)
	SubmitReauthenticated(ctx context.Context, memberID id.MemberID, input attendance.CheckInInput) (*attendance.CheckInResult, error)
}

// Reauthenticator confirms a member's identity through a secondary,
// already-authenticated channel (the member app's live session) when the
// token captured offline has since expired. No implementation available
// means expired offline marks are parked, never silently accepted.
type Reauthenticator interface {
	Confirm(ctx context.Context, memberID id.MemberID) (bool, error)
}

// Engine runs sweeps over the offline queue.
type Engine struct {
	queue    offline.Queue
	submit   Submitter
	operator OperatorStore
	reauth   Reauthenticator
	logger   *slog.Logger
	metrics  *syncmetrics.Metrics

	batchSize   int
	maxAttempts int
	interval    time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration

	online chan struct{}
}

// Option configures the engine.
type Option func(*Engine)

// WithReauthenticator wires the secondary identity channel.
func WithReauthenticator(r Reauthenticator) Option {
	return func(e *Engine) { e.reauth = r }
}

// WithBatchSize bounds how many marks one sweep claims.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithMaxAttempts bounds retries before a mark is parked.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithInterval sets the periodic backstop sweep interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(e *Engine) {
		if base > 0 {
			e.baseBackoff = base
		}
		if max > 0 {
			e.maxBackoff = max
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *syncmetrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(queue offline.Queue, submit Submitter, operator OperatorStore, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if queue == nil || submit == nil || operator == nil {
		return nil, fmt.Errorf("sync engine requires queue, submitter, and operator store")
	}
	e := &Engine{
		queue:       queue,
		submit:      submit,
		operator:    operator,
		logger:      logger,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		interval:    defaultInterval,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		online:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NotifyOnline triggers an immediate sweep, called when the station
// detects the offline-to-online transition. Coalesces if a notification
// is already pending.
func (e *Engine) NotifyOnline() {
	select {
	case e.online <- struct{}{}:
	default:
	}
}

// SweepStats reports what one sweep did.
type SweepStats struct {
	Acked    int
	Requeued int
	Parked   int
}

// Sweep claims one batch and processes each mark independently. A
// cancelled context releases every unprocessed claim back to queued; no
// batch-level partial acknowledgment exists.
func (e *Engine) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	start := time.Now()
	batch, err := e.queue.PeekBatch(ctx, e.batchSize)
	if err != nil {
		return stats, fmt.Errorf("peek offline queue: %w", err)
	}

	for i, mark := range batch {
		if ctx.Err() != nil {
			e.releaseRest(batch[i:])
			return stats, ctx.Err()
		}
		e.processMark(ctx, mark, &stats)
	}

	if e.metrics != nil {
		e.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	return stats, nil
}

// releaseRest reverts unprocessed claims with a fresh context; the
// sweep's own context is already cancelled.
func (e *Engine) releaseRest(rest []*offline.PendingMark) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, mark := range rest {
		if err := e.queue.Release(ctx, mark.LocalID); err != nil {
			e.logger.ErrorContext(ctx, "release of claimed mark failed",
				"local_id", mark.LocalID, "error", err)
		}
	}
}

func (e *Engine) processMark(ctx context.Context, mark *offline.PendingMark, stats *SweepStats) {
	input, err := buildInput(mark)
	if err != nil {
		if e.park(ctx, mark, ReasonMarkUnprocessable, err.Error()) {
			stats.Parked++
		} else {
			stats.Requeued++
		}
		return
	}

	_, err = e.submit.SubmitSynced(ctx, input)
	if err == nil {
		e.ack(ctx, mark, stats)
		return
	}

	switch dErrors.CodeOf(err) {
	case dErrors.CodeTokenExpired:
		e.handleExpiredToken(ctx, mark, input, stats)
	case dErrors.CodeTokenInvalid, dErrors.CodeMemberUnknown, dErrors.CodeInvalidInput:
		if e.park(ctx, mark, ReasonMarkUnprocessable, dErrors.MessageOf(err)) {
			stats.Parked++
		} else {
			stats.Requeued++
		}
	default:
		e.retryOrPark(ctx, mark, err, stats)
	}
}

// handleExpiredToken applies the expiry trade-off: an offline identity
// claim past its window is accepted only when a secondary authenticated
// channel vouches for the member, otherwise it is parked with
// TokenExpiredOffline.
func (e *Engine) handleExpiredToken(ctx context.Context, mark *offline.PendingMark, input attendance.CheckInInput, stats *SweepStats) {
	if e.reauth != nil {
		confirmed, err := e.reauth.Confirm(ctx, mark.MemberID)
		if err != nil {
			e.retryOrPark(ctx, mark, err, stats)
			return
		}
		if confirmed {
			if _, err := e.submit.SubmitReauthenticated(ctx, mark.MemberID, input); err != nil {
				e.retryOrPark(ctx, mark, err, stats)
				return
			}
			e.ack(ctx, mark, stats)
			return
		}
	}
	if e.park(ctx, mark, ReasonTokenExpiredOffline, "token expired before synchronization") {
		stats.Parked++
	} else {
		stats.Requeued++
	}
}

func (e *Engine) retryOrPark(ctx context.Context, mark *offline.PendingMark, cause error, stats *SweepStats) {
	if mark.Attempts+1 >= e.maxAttempts {
		if e.park(ctx, mark, ReasonRetryExhausted, cause.Error()) {
			stats.Parked++
		} else {
			stats.Requeued++
		}
		return
	}
	lctx, cancel := localCtx(ctx)
	defer cancel()
	if err := e.queue.Requeue(lctx, mark.LocalID, cause.Error()); err != nil {
		e.logger.ErrorContext(lctx, "requeue failed", "local_id", mark.LocalID, "error", err)
		return
	}
	stats.Requeued++
	if e.metrics != nil {
		e.metrics.MarksSynced.WithLabelValues("requeued").Inc()
	}
}

func (e *Engine) ack(ctx context.Context, mark *offline.PendingMark, stats *SweepStats) {
	lctx, cancel := localCtx(ctx)
	defer cancel()
	if err := e.queue.Ack(lctx, mark.LocalID); err != nil {
		e.logger.ErrorContext(lctx, "ack failed", "local_id", mark.LocalID, "error", err)
		return
	}
	stats.Acked++
	if e.metrics != nil {
		e.metrics.MarksSynced.WithLabelValues("acknowledged").Inc()
	}
}

// park mirrors the mark into the operator queue, then terminally rejects
// it in the station queue. The operator write goes first: it is
// idempotent per (station, local id), so when it fails the mark is
// released back to queued and the next sweep parks it again, whereas a
// locally rejected mark would never be reclaimed. Reports whether the
// escalation landed.
func (e *Engine) park(ctx context.Context, mark *offline.PendingMark, reason, detail string) bool {
	entry := OperatorEntry{
		LocalID:    fmt.Sprintf("%d", mark.LocalID),
		StationID:  mark.StationID,
		MemberID:   mark.MemberID,
		SessionKey: mark.SessionKey,
		Status:     mark.Status,
		Reason:     reason,
		Detail:     detail,
		MarkedAt:   mark.ClientTimestamp,
	}
	lctx, cancel := localCtx(ctx)
	defer cancel()
	if err := e.operator.Park(ctx, entry); err != nil {
		e.logger.ErrorContext(lctx, "operator park failed", "local_id", mark.LocalID, "error", err)
		if err := e.queue.Release(lctx, mark.LocalID); err != nil {
			e.logger.ErrorContext(lctx, "release after failed park failed", "local_id", mark.LocalID, "error", err)
		}
		return false
	}
	if err := e.queue.Reject(lctx, mark.LocalID, reason); err != nil {
		e.logger.ErrorContext(lctx, "reject failed", "local_id", mark.LocalID, "error", err)
	}
	e.logger.WarnContext(lctx, "mark parked for operator review",
		"local_id", mark.LocalID,
		"reason", reason,
	)
	if e.metrics != nil {
		e.metrics.MarksSynced.WithLabelValues("parked").Inc()
		e.metrics.QueueParked.Inc()
	}
	return true
}

// localCtx hands back ctx, or a short fresh context when ctx is already
// cancelled. Station-queue state transitions must still land after a
// cancelled sweep, otherwise the in-flight mark is stranded in sending.
func localCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func buildInput(mark *offline.PendingMark) (attendance.CheckInInput, error) {
	key, err := session.ParseKey(mark.SessionKey)
	if err != nil {
		return attendance.CheckInInput{}, fmt.Errorf("session key %q: %w", mark.SessionKey, err)
	}
	return attendance.CheckInInput{
		Token:       mark.Token,
		ServiceDate: key.Date,
		ServiceType: key.ServiceType,
		MinistryID:  key.MinistryID,
		Status:      mark.Status,
		FirstTimer:  mark.FirstTimer,
		MarkedAt:    mark.ClientTimestamp,
	}, nil
}

// Run sweeps on the backstop interval and immediately on connectivity
// notifications, until the context is cancelled. Sweeps that leave marks
// requeued stretch the next wait exponentially up to the cap; a clean
// sweep or an online notification resets it.
func (e *Engine) Run(ctx context.Context) error {
	failures := 0
	timer := time.NewTimer(e.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.online:
			failures = 0
		case <-timer.C:
		}

		sweepCtx := requestcontext.WithTime(ctx, time.Now())
		stats, err := e.Sweep(sweepCtx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil || stats.Requeued > 0:
			failures++
		default:
			failures = 0
		}
		if err != nil {
			e.logger.ErrorContext(ctx, "sweep failed", "error", err)
		}

		timer.Reset(e.nextWait(failures))
	}
}

func (e *Engine) nextWait(failures int) time.Duration {
	if failures == 0 {
		return e.interval
	}
	wait := e.baseBackoff << (failures - 1)
	if wait > e.maxBackoff || wait <= 0 {
		wait = e.maxBackoff
	}
	return wait
}
