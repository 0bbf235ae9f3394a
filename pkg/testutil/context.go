package testutil

import (
	"net/http"
	"time"

	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

// WithStation adds a station ID to the request context, simulating what the
// station-identification middleware does for real requests. Invalid IDs are
// silently ignored.
func WithStation(req *http.Request, stationID string) *http.Request {
	if parsed, err := id.ParseStationID(stationID); err == nil {
		return req.WithContext(requestcontext.WithStationID(req.Context(), parsed))
	}
	return req
}

// WithMember adds a verified member ID to the request context, simulating a
// request whose token already passed verification.
func WithMember(req *http.Request, memberID string) *http.Request {
	if parsed, err := id.ParseMemberID(memberID); err == nil {
		return req.WithContext(requestcontext.WithMemberID(req.Context(), parsed))
	}
	return req
}

// WithFixedTime pins the request-scoped clock, so handlers and stores
// observe a deterministic "now".
func WithFixedTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
