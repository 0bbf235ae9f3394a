// Package replay enforces single-use of check-in token nonces on the
// online submission path. Token verification itself is pure; this guard is
// a separate store the attendance service consults after verification, so
// a captured token cannot be scanned twice at two stations.
package replay

import (
	"context"
	"time"
)

// Guard marks nonces as consumed. Implementations are safe for concurrent
// use from multiple stations.
type Guard interface {
	// Consume atomically records the nonce as used. Returns a wrapped
	// sentinel.ErrAlreadyUsed if it was consumed before. The entry
	// self-expires shortly after the token itself would, so the guard
	// never grows unbounded.
	Consume(ctx context.Context, nonce string, ttl time.Duration) error
}
