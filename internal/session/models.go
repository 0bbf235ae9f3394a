// Package session resolves service-session keys (date + service type +
// optional ministry) to canonical session IDs, creating sessions lazily on
// first reference.
package session

import (
	"fmt"
	"strings"
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// Key uniquely identifies one occurrence of a service. MinistryID is empty
// for church-wide services. Keys are value objects: once a session exists
// for a key, the pairing never changes.
type Key struct {
	Date        time.Time
	ServiceType id.ServiceType
	MinistryID  string
}

// NewKey normalizes the date to a UTC calendar day so two stations in
// different zones scanning the same service resolve the same session.
func NewKey(date time.Time, serviceType id.ServiceType, ministryID string) (Key, error) {
	if serviceType == "" {
		return Key{}, dErrors.New(dErrors.CodeInvalidInput, "service_type is required")
	}
	year, month, day := date.UTC().Date()
	return Key{
		Date:        time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		ServiceType: serviceType,
		MinistryID:  strings.TrimSpace(ministryID),
	}, nil
}

// String renders the key in its canonical wire form
// "2024-01-21|sunday_first|youth" (ministry segment empty when unset).
// The offline queue persists keys in this form.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Date.Format("2006-01-02"), k.ServiceType, k.MinistryID)
}

// ParseKey parses the canonical wire form back into a Key.
func ParseKey(raw string) (Key, error) {
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		return Key{}, dErrors.New(dErrors.CodeInvalidInput, "malformed session key")
	}
	date, err := time.ParseInLocation("2006-01-02", parts[0], time.UTC)
	if err != nil {
		return Key{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed session key date")
	}
	return NewKey(date, id.ServiceType(parts[1]), parts[2])
}

// ServiceSession is one concrete occurrence of a service. Sessions are
// append-only: created on first reference, never updated or deleted.
type ServiceSession struct {
	ID        id.SessionID
	Key       Key
	CreatedAt time.Time
}
