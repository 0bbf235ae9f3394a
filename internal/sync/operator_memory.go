package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

// InMemoryOperatorStore backs tests and single-binary deployments.
type InMemoryOperatorStore struct {
	mu      sync.Mutex
	entries map[id.MarkID]*OperatorEntry
	byLocal map[string]id.MarkID
}

func NewInMemoryOperatorStore() *InMemoryOperatorStore {
	return &InMemoryOperatorStore{
		entries: make(map[id.MarkID]*OperatorEntry),
		byLocal: make(map[string]id.MarkID),
	}
}

func (s *InMemoryOperatorStore) Park(ctx context.Context, entry OperatorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dedupe := entry.StationID.String() + "|" + entry.LocalID
	if _, ok := s.byLocal[dedupe]; ok {
		return nil
	}

	if entry.ID.IsNil() {
		entry.ID = id.NewMarkID()
	}
	if entry.ParkedAt.IsZero() {
		entry.ParkedAt = requestcontext.Now(ctx)
	}

	stored := entry
	s.entries[entry.ID] = &stored
	s.byLocal[dedupe] = entry.ID
	return nil
}

func (s *InMemoryOperatorStore) ListOpen(_ context.Context) ([]*OperatorEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	open := make([]*OperatorEntry, 0)
	for _, entry := range s.entries {
		if entry.ResolvedAt == nil {
			clone := *entry
			open = append(open, &clone)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ParkedAt.Before(open[j].ParkedAt) })
	return open, nil
}

func (s *InMemoryOperatorStore) Resolve(ctx context.Context, entryID id.MarkID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[entryID]
	if !ok {
		return fmt.Errorf("operator entry %s: %w", entryID.String(), sentinel.ErrNotFound)
	}
	if entry.ResolvedAt == nil {
		now := requestcontext.Now(ctx)
		entry.ResolvedAt = &now
	}
	return nil
}
