package session

import (
	"context"
	"time"

	id "flock/pkg/domain"
)

// Store persists service sessions.
//
// Error contract: FindByID returns a wrapped sentinel.ErrNotFound for
// unknown sessions. Resolve never races itself into duplicates: the
// insert-if-absent must be atomic at the storage layer, not a
// check-then-insert sequence.
type Store interface {
	// Resolve returns the session for the key, creating it if absent.
	// Concurrent resolutions of the same key observe the same session.
	Resolve(ctx context.Context, key Key) (*ServiceSession, error)

	// FindByID returns the session with the given ID.
	FindByID(ctx context.Context, sessionID id.SessionID) (*ServiceSession, error)

	// ListRange returns sessions whose date falls in [from, to] inclusive,
	// ordered by date then service type.
	ListRange(ctx context.Context, from, to time.Time) ([]*ServiceSession, error)
}
