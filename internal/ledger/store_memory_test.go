package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "flock/pkg/domain"
)

type LedgerStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func (s *LedgerStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func TestLedgerStoreSuite(t *testing.T) {
	suite.Run(t, new(LedgerStoreSuite))
}

func input(sessionID id.SessionID, memberID id.MemberID, status id.AttendanceStatus, markedAt time.Time) MarkInput {
	return MarkInput{
		SessionID:     sessionID,
		MemberID:      memberID,
		Status:        status,
		MarkedAt:      markedAt,
		SourceStation: id.StationID(uuid.New()),
	}
}

func (s *LedgerStoreSuite) TestUpsertIsIdempotent() {
	ctx := context.Background()
	sessionID := id.SessionID(uuid.New())
	memberID := id.MemberID(uuid.New())
	markedAt := time.Date(2024, 1, 21, 9, 45, 0, 0, time.UTC)

	first, outcome, err := s.store.Upsert(ctx, input(sessionID, memberID, id.StatusPresent, markedAt))
	s.Require().NoError(err)
	s.Equal(OutcomeInserted, outcome)

	// Identical repeats change nothing: one logical record, one state.
	for i := 0; i < 3; i++ {
		repeat, outcome, err := s.store.Upsert(ctx, input(sessionID, memberID, id.StatusPresent, markedAt))
		s.Require().NoError(err)
		s.Equal(OutcomeStale, outcome)
		s.Equal(first.ID, repeat.ID)
		s.Equal(id.StatusPresent, repeat.Status)
	}

	marks, err := s.store.ListBySession(ctx, sessionID)
	s.Require().NoError(err)
	s.Len(marks, 1)
}

func (s *LedgerStoreSuite) TestLaterTimestampWinsNotLaterArrival() {
	ctx := context.Background()
	sessionID := id.SessionID(uuid.New())
	memberID := id.MemberID(uuid.New())

	// Mark absent at t=10, then present at t=5 arriving later. The
	// earlier-stamped write must lose even though it arrived last.
	_, _, err := s.store.Upsert(ctx, input(sessionID, memberID, id.StatusAbsent, time.Unix(10, 0)))
	s.Require().NoError(err)

	survivor, outcome, err := s.store.Upsert(ctx, input(sessionID, memberID, id.StatusPresent, time.Unix(5, 0)))
	s.Require().NoError(err)
	s.Equal(OutcomeStale, outcome)
	s.Equal(id.StatusAbsent, survivor.Status)

	marks, err := s.store.ListBySession(ctx, sessionID)
	s.Require().NoError(err)
	s.Require().Len(marks, 1)
	s.Equal(id.StatusAbsent, marks[0].Status)
	s.Equal(time.Unix(10, 0), marks[0].MarkedAt)
}

func (s *LedgerStoreSuite) TestLaterTimestampUpdatesInPlace() {
	ctx := context.Background()
	sessionID := id.SessionID(uuid.New())
	memberID := id.MemberID(uuid.New())

	first, _, err := s.store.Upsert(ctx, input(sessionID, memberID, id.StatusAbsent, time.Unix(5, 0)))
	s.Require().NoError(err)

	updated, outcome, err := s.store.Upsert(ctx, input(sessionID, memberID, id.StatusPresent, time.Unix(10, 0)))
	s.Require().NoError(err)
	s.Equal(OutcomeUpdated, outcome)
	s.Equal(first.ID, updated.ID, "update in place, never duplicate")
	s.Equal(id.StatusPresent, updated.Status)
}

func (s *LedgerStoreSuite) TestConcurrentStationsNoCorruption() {
	ctx := context.Background()
	sessionID := id.SessionID(uuid.New())
	memberID := id.MemberID(uuid.New())

	// Two stations mark the same member concurrently with different
	// statuses and timestamps. The ledger must end with exactly one
	// record carrying the later timestamp's status.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			status := id.StatusPresent
			if n%2 == 0 {
				status = id.StatusExcused
			}
			_, _, _ = s.store.Upsert(ctx, input(sessionID, memberID, status, time.Unix(int64(n), 0)))
		}(i)
	}
	wg.Wait()

	marks, err := s.store.ListBySession(ctx, sessionID)
	s.Require().NoError(err)
	s.Require().Len(marks, 1, "no duplicate record under concurrency")
	s.Equal(time.Unix(7, 0), marks[0].MarkedAt, "latest timestamp wins")
	s.Equal(id.StatusPresent, marks[0].Status)
}

func (s *LedgerStoreSuite) TestListBySessionsReturnsPerSessionGroups() {
	ctx := context.Background()
	sessionA := id.SessionID(uuid.New())
	sessionB := id.SessionID(uuid.New())

	_, _, err := s.store.Upsert(ctx, input(sessionA, id.MemberID(uuid.New()), id.StatusPresent, time.Unix(1, 0)))
	s.Require().NoError(err)
	_, _, err = s.store.Upsert(ctx, input(sessionA, id.MemberID(uuid.New()), id.StatusAbsent, time.Unix(2, 0)))
	s.Require().NoError(err)
	_, _, err = s.store.Upsert(ctx, input(sessionB, id.MemberID(uuid.New()), id.StatusPresent, time.Unix(3, 0)))
	s.Require().NoError(err)

	grouped, err := s.store.ListBySessions(ctx, []id.SessionID{sessionA, sessionB})
	s.Require().NoError(err)
	s.Len(grouped[sessionA], 2)
	s.Len(grouped[sessionB], 1)
}

func (s *LedgerStoreSuite) TestReturnedMarksDoNotAliasStore() {
	ctx := context.Background()
	sessionID := id.SessionID(uuid.New())
	memberID := id.MemberID(uuid.New())

	mark, _, err := s.store.Upsert(ctx, input(sessionID, memberID, id.StatusPresent, time.Unix(1, 0)))
	s.Require().NoError(err)

	mark.Status = id.StatusExcused

	stored, err := s.store.ListBySession(ctx, sessionID)
	s.Require().NoError(err)
	s.Equal(id.StatusPresent, stored[0].Status, "caller mutation must not leak into store")
}
