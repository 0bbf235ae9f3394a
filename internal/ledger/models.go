// Package ledger owns the idempotent per-session, per-member attendance
// mark store and its mutation API. The unique-key upsert in this package
// is the sole mutation path for marks: no caller reads, modifies, and
// writes a mark through separate calls.
package ledger

import (
	"time"

	id "flock/pkg/domain"
)

// AttendeeMark is the recorded attendance of one member for one session.
// At most one mark exists per (session, member) pair; later writes update
// in place.
type AttendeeMark struct {
	ID            id.MarkID
	SessionID     id.SessionID
	MemberID      id.MemberID
	Status        id.AttendanceStatus
	FirstTimer    bool
	MarkedAt      time.Time
	SourceStation id.StationID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MarkInput carries one mark mutation. MarkedAt is the client-observed
// timestamp, never the server arrival time: the ledger's conflict policy
// compares embedded timestamps so out-of-order delivery from offline
// queues is safe.
type MarkInput struct {
	SessionID     id.SessionID
	MemberID      id.MemberID
	Status        id.AttendanceStatus
	FirstTimer    bool
	MarkedAt      time.Time
	SourceStation id.StationID
}

// UpsertOutcome reports what the atomic upsert did.
type UpsertOutcome string

const (
	// OutcomeInserted: first mark for this (session, member) pair.
	OutcomeInserted UpsertOutcome = "inserted"
	// OutcomeUpdated: the input's timestamp won and replaced the fields.
	OutcomeUpdated UpsertOutcome = "updated"
	// OutcomeStale: an equal or later mark already exists; the write was a
	// no-op and the surviving row is returned. Never surfaced as an error.
	OutcomeStale UpsertOutcome = "stale"
)

// Summary is the session-level aggregate returned with each mark response.
type Summary struct {
	Total   int     `json:"total"`
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Rate    float64 `json:"rate"`
}

// SessionMarks groups a session's marks for range queries.
type SessionMarks struct {
	SessionID   id.SessionID
	Date        time.Time
	ServiceType id.ServiceType
	MinistryID  string
	Marks       []*AttendeeMark
}
