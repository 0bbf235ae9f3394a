package member

import (
	"context"
	"sync"

	id "flock/pkg/domain"
)

// InMemoryDirectory is a Lookup backed by a map, used in tests and for
// single-binary deployments seeded from a roster file.
type InMemoryDirectory struct {
	mu       sync.RWMutex
	profiles map[id.MemberID]Profile
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{profiles: make(map[id.MemberID]Profile)}
}

// Add registers a member. Category defaults to adult when unset.
func (d *InMemoryDirectory) Add(memberID id.MemberID, displayName string, category Category) {
	if category == "" {
		category = CategoryAdult
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[memberID] = Profile{
		ID:          memberID,
		DisplayName: displayName,
		Category:    category,
		Exists:      true,
	}
}

func (d *InMemoryDirectory) Resolve(_ context.Context, memberID id.MemberID) (Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[memberID]
	if !ok {
		return Profile{ID: memberID}, nil
	}
	return profile, nil
}
