package events

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "flock/pkg/domain"
)

type captureSink struct {
	events []Event
	err    error
}

func (s *captureSink) Handle(_ context.Context, event Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func markEvent(kind Kind) Event {
	return Event{
		Kind:          kind,
		MarkID:        id.MarkID(uuid.New()),
		SessionID:     id.SessionID(uuid.New()),
		MemberID:      id.MemberID(uuid.New()),
		Status:        id.StatusPresent,
		MarkedAt:      time.Now(),
		SourceStation: id.StationID(uuid.New()),
	}
}

func TestWorkerDispatchesToAllSinks(t *testing.T) {
	publisher := NewPublisher(8)
	first := &captureSink{}
	second := &captureSink{}
	worker := NewWorker(publisher.Inbox(), slog.New(slog.DiscardHandler), first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	require.True(t, publisher.Emit(ctx, markEvent(KindMarkCreated)))
	require.True(t, publisher.Emit(ctx, markEvent(KindMarkUpdated)))

	assert.Eventually(t, func() bool {
		return len(first.events) == 2 && len(second.events) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestWorkerDropsUnknownKind(t *testing.T) {
	publisher := NewPublisher(8)
	sink := &captureSink{}
	worker := NewWorker(publisher.Inbox(), slog.New(slog.DiscardHandler), sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	publisher.Emit(ctx, Event{Kind: Kind("mark.exploded")})
	publisher.Emit(ctx, markEvent(KindMarkCreated))

	assert.Eventually(t, func() bool {
		return len(sink.events) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestPublisherDropsWhenFull(t *testing.T) {
	publisher := NewPublisher(1)
	ctx := context.Background()

	assert.True(t, publisher.Emit(ctx, markEvent(KindMarkCreated)))
	assert.False(t, publisher.Emit(ctx, markEvent(KindMarkCreated)), "full buffer must drop, not block")
}
