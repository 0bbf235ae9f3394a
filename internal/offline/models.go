// Package offline is the station-resident durable buffer for marks
// attempted without connectivity. Entries live here, and only here, until
// the synchronization engine walks them through its state machine to a
// terminal outcome.
package offline

import (
	"time"

	id "flock/pkg/domain"
)

// SyncState is the per-mark position in the sync state machine.
type SyncState string

const (
	// StateQueued: waiting for a sync sweep.
	StateQueued SyncState = "queued"
	// StateSending: claimed by an in-flight batch. Reverts to queued if
	// the batch is cancelled before this mark acknowledges.
	StateSending SyncState = "sending"
	// StateRejected: terminal; held for manual reconciliation and shown
	// in the operator queue. Never retried automatically.
	StateRejected SyncState = "rejected"
)

// PendingMark is one attendance mark recorded while offline. The token
// captured at scan time travels with it so the server can re-verify
// identity at sync time.
type PendingMark struct {
	LocalID         int64
	StationID       id.StationID
	SessionKey      string
	MemberID        id.MemberID
	Status          id.AttendanceStatus
	FirstTimer      bool
	ClientTimestamp time.Time
	Token           string
	State           SyncState
	Attempts        int
	LastError       string
	EnqueuedAt      time.Time
}
