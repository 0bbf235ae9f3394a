// Package domain holds the typed identifiers and enumerations shared across
// the attendance subsystem. IDs are distinct types over uuid.UUID so the
// compiler rejects cross-type assignment (a member ID can never be passed
// where a session ID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "flock/pkg/domain-errors"
)

// MemberID identifies a member record owned by the external membership
// service. Opaque from this subsystem's perspective.
type MemberID uuid.UUID

// SessionID identifies one concrete service session (date + type + ministry).
type SessionID uuid.UUID

// StationID identifies a scanning station (edge client instance).
type StationID uuid.UUID

// MarkID identifies a single attendance mark row.
type MarkID uuid.UUID

func (id MemberID) String() string  { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id StationID) String() string { return uuid.UUID(id).String() }
func (id MarkID) String() string    { return uuid.UUID(id).String() }

func (id MemberID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id StationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MarkID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewSessionID returns a fresh random session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewMarkID returns a fresh random mark ID.
func NewMarkID() MarkID { return MarkID(uuid.New()) }

// parseUUID enforces the shared parsing invariant: IDs must be valid,
// non-nil UUIDs. Trust boundaries (HTTP handlers, queue payloads) go
// through these parsers so malformed input never reaches a store.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return parsed, nil
}

// ParseMemberID parses a member ID from its string form.
func ParseMemberID(raw string) (MemberID, error) {
	parsed, err := parseUUID(raw, "member_id")
	if err != nil {
		return MemberID{}, err
	}
	return MemberID(parsed), nil
}

// ParseSessionID parses a session ID from its string form.
func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := parseUUID(raw, "session_id")
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(parsed), nil
}

// ParseMarkID parses a mark ID from its string form.
func ParseMarkID(raw string) (MarkID, error) {
	parsed, err := parseUUID(raw, "mark_id")
	if err != nil {
		return MarkID{}, err
	}
	return MarkID(parsed), nil
}

// ParseStationID parses a station ID from its string form.
func ParseStationID(raw string) (StationID, error) {
	parsed, err := parseUUID(raw, "station_id")
	if err != nil {
		return StationID{}, err
	}
	return StationID(parsed), nil
}
