// Package events carries ledger change events to downstream consumers.
// Events are a closed tagged-variant type dispatched through exhaustive
// switching, never string-keyed payload maps.
package events

import (
	"time"

	id "flock/pkg/domain"
)

// Kind tags the event variant. The set is closed; sinks switch over it
// exhaustively and treat anything else as a programming error.
type Kind string

const (
	KindMarkCreated Kind = "mark.created"
	KindMarkUpdated Kind = "mark.updated"
)

// Event is one ledger change. All variants share this shape; Kind selects
// the semantics.
type Event struct {
	Kind          Kind
	MarkID        id.MarkID
	SessionID     id.SessionID
	MemberID      id.MemberID
	Status        id.AttendanceStatus
	FirstTimer    bool
	MarkedAt      time.Time
	SourceStation id.StationID
	Timestamp     time.Time
}
