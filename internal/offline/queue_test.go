package offline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
)

// QueueSuite runs the contract tests against both queue implementations.
type QueueSuite struct {
	suite.Suite
	open func(t *testing.T) Queue
	q    Queue
}

func (s *QueueSuite) SetupTest() {
	s.q = s.open(s.T())
}

func TestInMemoryQueueSuite(t *testing.T) {
	suite.Run(t, &QueueSuite{open: func(*testing.T) Queue {
		return NewInMemoryQueue()
	}})
}

func TestSQLiteQueueSuite(t *testing.T) {
	suite.Run(t, &QueueSuite{open: func(t *testing.T) Queue {
		q, err := OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
		if err != nil {
			t.Fatalf("open sqlite queue: %v", err)
		}
		t.Cleanup(func() { _ = q.Close() })
		return q
	}})
}

func pending(stationID id.StationID) PendingMark {
	return PendingMark{
		StationID:       stationID,
		SessionKey:      "2024-01-21|sunday_first|",
		MemberID:        id.MemberID(uuid.New()),
		Status:          id.StatusPresent,
		ClientTimestamp: time.Date(2024, 1, 21, 9, 40, 0, 0, time.UTC),
		Token:           "opaque-token",
	}
}

func (s *QueueSuite) TestEnqueueAssignsIDsInOrder() {
	ctx := context.Background()
	stationID := id.StationID(uuid.New())

	first, err := s.q.Enqueue(ctx, pending(stationID))
	s.Require().NoError(err)
	second, err := s.q.Enqueue(ctx, pending(stationID))
	s.Require().NoError(err)

	s.Equal(StateQueued, first.State)
	s.Less(first.LocalID, second.LocalID)

	count, err := s.q.CountQueued(ctx, stationID)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *QueueSuite) TestPeekBatchIsFIFOAndClaims() {
	ctx := context.Background()
	stationID := id.StationID(uuid.New())

	var enqueued []*PendingMark
	for i := 0; i < 3; i++ {
		mark, err := s.q.Enqueue(ctx, pending(stationID))
		s.Require().NoError(err)
		enqueued = append(enqueued, mark)
	}

	batch, err := s.q.PeekBatch(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(batch, 2)
	s.Equal(enqueued[0].LocalID, batch[0].LocalID, "oldest first")
	s.Equal(enqueued[1].LocalID, batch[1].LocalID)
	s.Equal(StateSending, batch[0].State)

	// Claimed marks are invisible to the next peek.
	rest, err := s.q.PeekBatch(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rest, 1)
	s.Equal(enqueued[2].LocalID, rest[0].LocalID)
}

func (s *QueueSuite) TestAckRemovesTheMark() {
	ctx := context.Background()
	mark, err := s.q.Enqueue(ctx, pending(id.StationID(uuid.New())))
	s.Require().NoError(err)

	s.Require().NoError(s.q.Ack(ctx, mark.LocalID))

	batch, err := s.q.PeekBatch(ctx, 10)
	s.Require().NoError(err)
	s.Empty(batch)

	err = s.q.Ack(ctx, mark.LocalID)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *QueueSuite) TestRequeueCountsAttempts() {
	ctx := context.Background()
	mark, err := s.q.Enqueue(ctx, pending(id.StationID(uuid.New())))
	s.Require().NoError(err)

	_, err = s.q.PeekBatch(ctx, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.q.Requeue(ctx, mark.LocalID, "ledger unavailable"))

	batch, err := s.q.PeekBatch(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)
	s.Equal(1, batch[0].Attempts)
	s.Equal("ledger unavailable", batch[0].LastError)
}

func (s *QueueSuite) TestReleaseDoesNotCountAnAttempt() {
	ctx := context.Background()
	mark, err := s.q.Enqueue(ctx, pending(id.StationID(uuid.New())))
	s.Require().NoError(err)

	_, err = s.q.PeekBatch(ctx, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.q.Release(ctx, mark.LocalID))

	batch, err := s.q.PeekBatch(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(batch, 1)
	s.Zero(batch[0].Attempts)
}

func (s *QueueSuite) TestRejectedMarksLeaveTheFlow() {
	ctx := context.Background()
	mark, err := s.q.Enqueue(ctx, pending(id.StationID(uuid.New())))
	s.Require().NoError(err)

	_, err = s.q.PeekBatch(ctx, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.q.Reject(ctx, mark.LocalID, "TokenExpiredOffline"))

	batch, err := s.q.PeekBatch(ctx, 10)
	s.Require().NoError(err)
	s.Empty(batch, "rejected marks are never re-claimed")

	rejected, err := s.q.ListRejected(ctx)
	s.Require().NoError(err)
	s.Require().Len(rejected, 1)
	s.Equal(StateRejected, rejected[0].State)
	s.Equal("TokenExpiredOffline", rejected[0].LastError)
}

func TestSQLiteQueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mark, err := q.Enqueue(ctx, pending(id.StationID(uuid.New())))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	batch, err := reopened.PeekBatch(ctx, 10)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(batch) != 1 || batch[0].LocalID != mark.LocalID {
		t.Fatalf("expected the enqueued mark to survive restart, got %d marks", len(batch))
	}
	if batch[0].MemberID != mark.MemberID || batch[0].Token != mark.Token {
		t.Fatal("persisted mark fields did not round-trip")
	}
}

func TestSQLiteQueueReopenRecoversClaimedMarks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mark, err := q.Enqueue(ctx, pending(id.StationID(uuid.New())))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := q.PeekBatch(ctx, 10)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(claimed) != 1 || claimed[0].State != StateSending {
		t.Fatalf("expected 1 claimed mark, got %d", len(claimed))
	}
	// The process dies before the claim is acked or released.
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	batch, err := reopened.PeekBatch(ctx, 10)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(batch) != 1 || batch[0].LocalID != mark.LocalID {
		t.Fatalf("expected the claimed mark back in queued after restart, got %d marks", len(batch))
	}
	if batch[0].Attempts != 0 {
		t.Fatalf("restart recovery must not count an attempt, got %d", batch[0].Attempts)
	}
}
