package offline

import (
	"context"

	id "flock/pkg/domain"
)

// Queue is the durable pending-mark store.
//
// Ordering contract: PeekBatch returns queued marks oldest-first per
// station. Global ordering across stations is not provided; the ledger's
// timestamp-based conflict policy absorbs cross-station reordering.
//
// Lifecycle contract: a mark stays in the queue until Ack (which removes
// it) or Reject (which parks it terminally). Requeue reverts a claimed
// mark to queued and counts the attempt.
type Queue interface {
	// Enqueue durably appends a mark and returns it with LocalID set.
	Enqueue(ctx context.Context, mark PendingMark) (*PendingMark, error)

	// PeekBatch claims up to n queued marks, transitioning them to
	// sending. Claimed marks are not returned by subsequent peeks.
	PeekBatch(ctx context.Context, n int) ([]*PendingMark, error)

	// Ack removes the mark after the ledger accepted it. Acking an
	// unknown ID returns a wrapped sentinel.ErrNotFound.
	Ack(ctx context.Context, localID int64) error

	// Reject parks the mark terminally with a machine-readable reason.
	Reject(ctx context.Context, localID int64, reason string) error

	// Requeue reverts a sending mark to queued, recording the failure.
	Requeue(ctx context.Context, localID int64, reason string) error

	// Release reverts a sending mark to queued without counting an
	// attempt. Used when a sweep is cancelled before the mark was
	// actually submitted.
	Release(ctx context.Context, localID int64) error

	// ListRejected returns terminally rejected marks for the operator
	// surface, oldest first.
	ListRejected(ctx context.Context) ([]*PendingMark, error)

	// CountQueued reports how many marks still await sync for a station.
	CountQueued(ctx context.Context, stationID id.StationID) (int, error)
}
