package events

import (
	"context"
	"log/slog"
)

// Sink receives dispatched events. Implementations must be safe for
// sequential calls from a single worker goroutine.
type Sink interface {
	Handle(ctx context.Context, event Event) error
}

// Worker drains the publisher inbox and fans events out to sinks. A sink
// failure is logged and skipped; one slow consumer must not wedge the
// stream for the rest.
type Worker struct {
	inbox  <-chan Event
	sinks  []Sink
	logger *slog.Logger
}

// NewWorker constructs a worker over the inbox and sinks.
func NewWorker(inbox <-chan Event, logger *slog.Logger, sinks ...Sink) *Worker {
	return &Worker{inbox: inbox, sinks: sinks, logger: logger}
}

// Run processes events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			w.dispatch(ctx, event)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, event Event) {
	switch event.Kind {
	case KindMarkCreated, KindMarkUpdated:
		for _, sink := range w.sinks {
			if err := sink.Handle(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "event sink failed",
					"kind", event.Kind,
					"mark_id", event.MarkID.String(),
					"error", err,
				)
			}
		}
	default:
		w.logger.ErrorContext(ctx, "unknown event kind dropped", "kind", event.Kind)
	}
}

// LogSink writes each event as a structured log line. Useful in dev and as
// the always-on sink when Kafka is not configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Handle(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "mark event",
		"kind", event.Kind,
		"session_id", event.SessionID.String(),
		"member_id", event.MemberID.String(),
		"status", event.Status,
		"first_timer", event.FirstTimer,
	)
	return nil
}
