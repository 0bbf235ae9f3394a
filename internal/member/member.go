// Package member is the read-only port into the congregation directory.
// Attendance never owns member records; it asks this port whether a member
// exists and what demographic category they fall in.
package member

import (
	"context"

	id "flock/pkg/domain"
)

// Category buckets a member for demographic breakdowns.
type Category string

const (
	CategoryAdult Category = "adult"
	CategoryYouth Category = "youth"
	CategoryChild Category = "child"
)

// Profile is the directory's view of one member, reduced to what
// attendance needs.
type Profile struct {
	ID          id.MemberID
	DisplayName string
	Category    Category
	Exists      bool
}

// Lookup resolves member identities against the directory.
//
// Resolve returns a Profile with Exists false for unknown members rather
// than an error: an unknown member is an expected outcome on the check-in
// path, not a failure of the lookup itself.
type Lookup interface {
	Resolve(ctx context.Context, memberID id.MemberID) (Profile, error)
}
