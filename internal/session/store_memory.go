package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

// InMemoryStore keeps sessions in memory for tests and dev. The single
// mutex makes Resolve's get-or-create atomic.
type InMemoryStore struct {
	mu     sync.RWMutex
	byKey  map[Key]*ServiceSession
	byID   map[id.SessionID]*ServiceSession
	nextID func() id.SessionID
}

// NewInMemory constructs an empty in-memory session store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byKey:  make(map[Key]*ServiceSession),
		byID:   make(map[id.SessionID]*ServiceSession),
		nextID: id.NewSessionID,
	}
}

func (s *InMemoryStore) Resolve(ctx context.Context, key Key) (*ServiceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[key]; ok {
		return existing, nil
	}

	created := &ServiceSession{
		ID:        s.nextID(),
		Key:       key,
		CreatedAt: requestcontext.Now(ctx),
	}
	s.byKey[key] = created
	s.byID[created.ID] = created
	return created, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*ServiceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if found, ok := s.byID[sessionID]; ok {
		return found, nil
	}
	return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListRange(_ context.Context, from, to time.Time) ([]*ServiceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ServiceSession
	for _, sess := range s.byKey {
		if sess.Key.Date.Before(from) || sess.Key.Date.After(to) {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Key.Date.Equal(out[j].Key.Date) {
			return out[i].Key.Date.Before(out[j].Key.Date)
		}
		return out[i].Key.ServiceType < out[j].Key.ServiceType
	})
	return out, nil
}
