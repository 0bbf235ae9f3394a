package offline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

// InMemoryQueue is a Queue for tests. It honors the full state machine
// but survives nothing.
type InMemoryQueue struct {
	mu     sync.Mutex
	marks  map[int64]*PendingMark
	nextID int64
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{marks: make(map[int64]*PendingMark)}
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, mark PendingMark) (*PendingMark, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	mark.LocalID = q.nextID
	mark.State = StateQueued
	mark.EnqueuedAt = requestcontext.Now(ctx)

	stored := mark
	q.marks[mark.LocalID] = &stored
	return copyMark(&stored), nil
}

func (q *InMemoryQueue) PeekBatch(_ context.Context, n int) ([]*PendingMark, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued := make([]*PendingMark, 0)
	for _, mark := range q.marks {
		if mark.State == StateQueued {
			queued = append(queued, mark)
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].LocalID < queued[j].LocalID })
	if len(queued) > n {
		queued = queued[:n]
	}

	out := make([]*PendingMark, 0, len(queued))
	for _, mark := range queued {
		mark.State = StateSending
		out = append(out, copyMark(mark))
	}
	return out, nil
}

func (q *InMemoryQueue) Ack(_ context.Context, localID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.marks[localID]; !ok {
		return fmt.Errorf("pending mark %d: %w", localID, sentinel.ErrNotFound)
	}
	delete(q.marks, localID)
	return nil
}

func (q *InMemoryQueue) Reject(_ context.Context, localID int64, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mark, ok := q.marks[localID]
	if !ok {
		return fmt.Errorf("pending mark %d: %w", localID, sentinel.ErrNotFound)
	}
	mark.State = StateRejected
	mark.LastError = reason
	return nil
}

func (q *InMemoryQueue) Requeue(_ context.Context, localID int64, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mark, ok := q.marks[localID]
	if !ok {
		return fmt.Errorf("pending mark %d: %w", localID, sentinel.ErrNotFound)
	}
	mark.State = StateQueued
	mark.Attempts++
	mark.LastError = reason
	return nil
}

func (q *InMemoryQueue) Release(_ context.Context, localID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mark, ok := q.marks[localID]
	if !ok {
		return fmt.Errorf("pending mark %d: %w", localID, sentinel.ErrNotFound)
	}
	mark.State = StateQueued
	return nil
}

func (q *InMemoryQueue) ListRejected(_ context.Context) ([]*PendingMark, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rejected := make([]*PendingMark, 0)
	for _, mark := range q.marks {
		if mark.State == StateRejected {
			rejected = append(rejected, copyMark(mark))
		}
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].LocalID < rejected[j].LocalID })
	return rejected, nil
}

func (q *InMemoryQueue) CountQueued(_ context.Context, stationID id.StationID) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, mark := range q.marks {
		if mark.State == StateQueued && mark.StationID == stationID {
			count++
		}
	}
	return count, nil
}

func copyMark(mark *PendingMark) *PendingMark {
	clone := *mark
	return &clone
}
