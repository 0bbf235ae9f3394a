package ledger

import (
	"context"

	id "flock/pkg/domain"
)

// Store persists attendee marks.
//
// Error contract: Upsert never returns a conflict error. Last-write-wins
// is resolved inside the store and a losing write surfaces as
// OutcomeStale with the surviving row. Infrastructure failures come back
// wrapped with context.
type Store interface {
	// Upsert atomically inserts or updates the mark keyed by
	// (SessionID, MemberID). An existing row is replaced only when the
	// input's MarkedAt is strictly later than the stored one.
	Upsert(ctx context.Context, input MarkInput) (*AttendeeMark, UpsertOutcome, error)

	// ListBySession returns all marks for a session, ordered by member ID
	// for stable output.
	ListBySession(ctx context.Context, sessionID id.SessionID) ([]*AttendeeMark, error)

	// ListBySessions returns marks for each of the given sessions.
	ListBySessions(ctx context.Context, sessionIDs []id.SessionID) (map[id.SessionID][]*AttendeeMark, error)
}
