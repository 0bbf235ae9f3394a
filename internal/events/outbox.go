package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "flock/pkg/domain"
)

// OutboxRelay ships rows the ledger's transaction wrote to the outbox
// table into the sink. The mark and its event commit atomically; the relay
// delivers at-least-once, and consumers dedupe on mark ID.
type OutboxRelay struct {
	db       *sql.DB
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// NewOutboxRelay constructs a relay polling at the given interval.
func NewOutboxRelay(db *sql.DB, sink Sink, logger *slog.Logger, interval time.Duration) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &OutboxRelay{db: db, sink: sink, logger: logger, interval: interval, batch: 100}
}

// Run polls until the context is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (r *OutboxRelay) drainOnce(ctx context.Context) error {
	const query = `
		SELECT id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, r.batch)
	if err != nil {
		return fmt.Errorf("select outbox: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id      uuid.UUID
		payload []byte
	}
	var batch []pending
	for rows.Next() {
		var row pending
		if err := rows.Scan(&row.id, &row.payload); err != nil {
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, row := range batch {
		event, err := decodeOutboxPayload(row.payload)
		if err != nil {
			// Poison rows are marked published so they stop blocking the
			// stream; the payload stays in the table for inspection.
			r.logger.ErrorContext(ctx, "outbox payload undecodable", "outbox_id", row.id, "error", err)
		} else if err := r.sink.Handle(ctx, event); err != nil {
			// Leave unpublished; the next tick retries from here.
			return fmt.Errorf("ship outbox row %s: %w", row.id, err)
		}

		const markPublished = `UPDATE outbox SET published_at = $1 WHERE id = $2`
		if _, err := r.db.ExecContext(ctx, markPublished, time.Now(), row.id); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
	}
	return nil
}

func decodeOutboxPayload(payload []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Event{}, err
	}

	kind := Kind(wire.Kind)
	switch kind {
	case KindMarkCreated, KindMarkUpdated:
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", wire.Kind)
	}

	markID, err := uuid.Parse(wire.MarkID)
	if err != nil {
		return Event{}, fmt.Errorf("parse mark id: %w", err)
	}
	sessionID, err := id.ParseSessionID(wire.SessionID)
	if err != nil {
		return Event{}, err
	}
	memberID, err := id.ParseMemberID(wire.MemberID)
	if err != nil {
		return Event{}, err
	}
	// Marks recorded without station identification carry the nil UUID;
	// that is an absent source, not a malformed row.
	var stationID id.StationID
	if wire.SourceStation != "" && wire.SourceStation != uuid.Nil.String() {
		stationID, err = id.ParseStationID(wire.SourceStation)
		if err != nil {
			return Event{}, err
		}
	}
	markedAt, err := time.Parse(time.RFC3339Nano, wire.MarkedAt)
	if err != nil {
		return Event{}, fmt.Errorf("parse marked_at: %w", err)
	}

	return Event{
		Kind:          kind,
		MarkID:        id.MarkID(markID),
		SessionID:     sessionID,
		MemberID:      memberID,
		Status:        id.AttendanceStatus(wire.Status),
		FirstTimer:    wire.FirstTimer,
		MarkedAt:      markedAt,
		SourceStation: stationID,
	}, nil
}
