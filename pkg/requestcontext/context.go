// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services and stores read
// them without importing net/http.
//
// The request-scoped time is the important one here: every store write in
// one request observes the same "now", and tests inject a fixed time with
// WithTime instead of stubbing the clock globally.
package requestcontext

import (
	"context"
	"time"

	id "flock/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	memberIDKey    struct{}
	stationIDKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyMemberID    = memberIDKey{}
	ContextKeyStationID   = stationIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// MemberID retrieves the verified member ID from the context.
// Returns the zero value if no token has been verified on this request.
func MemberID(ctx context.Context) id.MemberID {
	if memberID, ok := ctx.Value(ContextKeyMemberID).(id.MemberID); ok {
		return memberID
	}
	return id.MemberID{}
}

// WithMemberID injects a verified member ID into the context.
func WithMemberID(ctx context.Context, memberID id.MemberID) context.Context {
	return context.WithValue(ctx, ContextKeyMemberID, memberID)
}

// StationID retrieves the scanning station ID from the context.
func StationID(ctx context.Context) id.StationID {
	if stationID, ok := ctx.Value(ContextKeyStationID).(id.StationID); ok {
		return stationID
	}
	return id.StationID{}
}

// WithStationID injects a station ID into the context.
func WithStationID(ctx context.Context, stationID id.StationID) context.Context {
	return context.WithValue(ctx, ContextKeyStationID, stationID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP callers (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Used by the request-time
// middleware, by the sync engine for per-sweep consistency, and by tests.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
