package ledger

import (
	"context"
	"sort"
	"sync"

	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

// InMemoryStore keeps marks in memory for tests and dev. The mutex spans
// the whole compare-and-replace so concurrent stations can never interleave
// into a lost update or a duplicate row.
type InMemoryStore struct {
	mu    sync.RWMutex
	marks map[id.SessionID]map[id.MemberID]*AttendeeMark
}

// NewInMemory constructs an empty in-memory ledger store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{marks: make(map[id.SessionID]map[id.MemberID]*AttendeeMark)}
}

func (s *InMemoryStore) Upsert(ctx context.Context, input MarkInput) (*AttendeeMark, UpsertOutcome, error) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	bySession, ok := s.marks[input.SessionID]
	if !ok {
		bySession = make(map[id.MemberID]*AttendeeMark)
		s.marks[input.SessionID] = bySession
	}

	existing, ok := bySession[input.MemberID]
	if !ok {
		created := &AttendeeMark{
			ID:            id.NewMarkID(),
			SessionID:     input.SessionID,
			MemberID:      input.MemberID,
			Status:        input.Status,
			FirstTimer:    input.FirstTimer,
			MarkedAt:      input.MarkedAt,
			SourceStation: input.SourceStation,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		bySession[input.MemberID] = created
		return copyMark(created), OutcomeInserted, nil
	}

	// Strictly-later wins. An equal timestamp keeps the stored row, which
	// makes identical retries idempotent and ties deterministic regardless
	// of arrival order.
	if !input.MarkedAt.After(existing.MarkedAt) {
		return copyMark(existing), OutcomeStale, nil
	}

	existing.Status = input.Status
	existing.FirstTimer = input.FirstTimer
	existing.MarkedAt = input.MarkedAt
	existing.SourceStation = input.SourceStation
	existing.UpdatedAt = now
	return copyMark(existing), OutcomeUpdated, nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID id.SessionID) ([]*AttendeeMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(sessionID), nil
}

func (s *InMemoryStore) ListBySessions(_ context.Context, sessionIDs []id.SessionID) (map[id.SessionID][]*AttendeeMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[id.SessionID][]*AttendeeMark, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		out[sessionID] = s.listLocked(sessionID)
	}
	return out, nil
}

func (s *InMemoryStore) listLocked(sessionID id.SessionID) []*AttendeeMark {
	bySession := s.marks[sessionID]
	out := make([]*AttendeeMark, 0, len(bySession))
	for _, mark := range bySession {
		out = append(out, copyMark(mark))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MemberID.String() < out[j].MemberID.String()
	})
	return out
}

// copyMark shields callers from aliasing the store's internal row.
func copyMark(mark *AttendeeMark) *AttendeeMark {
	clone := *mark
	return &clone
}
