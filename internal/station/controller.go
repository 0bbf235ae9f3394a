package station

import (
	"context"
	"fmt"
	"log/slog"

	"flock/internal/attendance"
	"flock/internal/offline"
	"flock/internal/session"
	"flock/internal/token"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/requestcontext"
)

// Submitter is the slice of the HTTP client the controller needs.
type Submitter interface {
	Mark(ctx context.Context, input attendance.CheckInInput) (*MarkResult, error)
}

// Controller picks the path for each scan: straight to the server while
// online, into the durable queue when the server is unreachable. The scan
// itself never fails just because the network did.
type Controller struct {
	cfg    *Config
	client Submitter
	queue  offline.Queue
	logger *slog.Logger
}

func NewController(cfg *Config, client Submitter, queue offline.Queue, logger *slog.Logger) (*Controller, error) {
	if cfg == nil || client == nil || queue == nil {
		return nil, fmt.Errorf("station controller requires config, client, and queue")
	}
	return &Controller{cfg: cfg, client: client, queue: queue, logger: logger}, nil
}

// ScanOutcome reports how a scan was handled.
type ScanOutcome struct {
	// Queued is true when the mark went to the offline queue instead of
	// the server.
	Queued bool
	// LocalID is set when Queued.
	LocalID int64
	// Result is set when the server accepted the mark directly.
	Result *MarkResult
}

// Scan records one attendance mark. Server rejections (expired token,
// unknown member) surface immediately so staff can act; only
// unreachability diverts to the queue.
func (c *Controller) Scan(ctx context.Context, rawToken string, status id.AttendanceStatus, firstTimer bool) (*ScanOutcome, error) {
	now := requestcontext.Now(ctx)
	input := attendance.CheckInInput{
		Token:       rawToken,
		ServiceDate: now,
		ServiceType: id.ServiceType(c.cfg.ServiceType),
		MinistryID:  c.cfg.MinistryID,
		Status:      status,
		FirstTimer:  firstTimer,
		MarkedAt:    now,
	}

	result, err := c.client.Mark(ctx, input)
	if err == nil {
		return &ScanOutcome{Result: result}, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
		return nil, err
	}

	memberID, peekErr := token.PeekMemberID(rawToken)
	if peekErr != nil {
		return nil, peekErr
	}
	key, keyErr := session.NewKey(now, id.ServiceType(c.cfg.ServiceType), c.cfg.MinistryID)
	if keyErr != nil {
		return nil, keyErr
	}

	pending, enqErr := c.queue.Enqueue(ctx, offline.PendingMark{
		StationID:       c.cfg.ParsedStationID(),
		SessionKey:      key.String(),
		MemberID:        memberID,
		Status:          status,
		FirstTimer:      firstTimer,
		ClientTimestamp: now,
		Token:           rawToken,
	})
	if enqErr != nil {
		return nil, fmt.Errorf("server unreachable and offline enqueue failed: %w", enqErr)
	}

	if c.logger != nil {
		c.logger.InfoContext(ctx, "mark queued offline",
			"local_id", pending.LocalID,
			"member_id", memberID.String(),
		)
	}
	return &ScanOutcome{Queued: true, LocalID: pending.LocalID}, nil
}

// QueueStatus summarizes the station's pending work.
type QueueStatus struct {
	Queued   int
	Rejected []*offline.PendingMark
}

// Status reports the offline queue's backlog and terminal rejections.
func (c *Controller) Status(ctx context.Context) (*QueueStatus, error) {
	queued, err := c.queue.CountQueued(ctx, c.cfg.ParsedStationID())
	if err != nil {
		return nil, err
	}
	rejected, err := c.queue.ListRejected(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{Queued: queued, Rejected: rejected}, nil
}
