package sync

import (
	"context"
	"time"

	id "flock/pkg/domain"
)

// Rejection reasons surfaced to operators. These are wire-visible
// constants; staff tooling matches on them.
const (
	// ReasonTokenExpiredOffline: the token captured during the offline
	// scan had expired by sync time and no secondary confirmation of the
	// member's identity was possible.
	ReasonTokenExpiredOffline = "TokenExpiredOffline"
	// ReasonRetryExhausted: the mark failed submission the bounded number
	// of times and will not be retried automatically.
	ReasonRetryExhausted = "SyncRetryExhausted"
	// ReasonMarkUnprocessable: the mark itself was rejected by the server
	// (unknown member, malformed data). Retrying cannot help.
	ReasonMarkUnprocessable = "MarkUnprocessable"
)

// OperatorEntry is one mark parked for manual reconciliation. Parking is
// the terminal escape hatch of the sync state machine: nothing is ever
// dropped silently.
type OperatorEntry struct {
	ID         id.MarkID
	LocalID    string
	StationID  id.StationID
	MemberID   id.MemberID
	SessionKey string
	Status     id.AttendanceStatus
	Reason     string
	Detail     string
	MarkedAt   time.Time
	ParkedAt   time.Time
	ResolvedAt *time.Time
}

// OperatorStore persists parked marks.
//
// Park is idempotent per (station, local id): a retried sweep that parks
// the same mark twice leaves one entry.
type OperatorStore interface {
	Park(ctx context.Context, entry OperatorEntry) error

	// ListOpen returns unresolved entries, oldest first.
	ListOpen(ctx context.Context) ([]*OperatorEntry, error)

	// Resolve stamps the entry as handled. Unknown IDs return a wrapped
	// sentinel.ErrNotFound; resolving twice is a no-op.
	Resolve(ctx context.Context, entryID id.MarkID) error
}
