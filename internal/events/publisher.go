package events

import (
	"context"
	"time"
)

// Publisher hands events to the background worker without blocking the
// mark write path. A full inbox drops the event rather than stalling a
// station: the outbox table remains the durable record, the in-process
// stream is best-effort.
type Publisher struct {
	inbox chan Event
}

// NewPublisher creates a publisher with the given buffer depth.
func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{inbox: make(chan Event, buffer)}
}

// Emit enqueues the event, stamping the time if unset. Returns false when
// the buffer is full and the event was dropped.
func (p *Publisher) Emit(_ context.Context, event Event) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		return true
	default:
		return false
	}
}

// Inbox exposes the receive side for the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}
