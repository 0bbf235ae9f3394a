package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

// PostgresStore persists marks in PostgreSQL and writes a change event to
// the outbox table in the same transaction, so a mark and its event are
// atomic (the outbox worker ships events to Kafka afterwards).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// outboxPayload is the JSON shape shipped to the change-event topic.
type outboxPayload struct {
	Kind          string `json:"kind"`
	MarkID        string `json:"mark_id"`
	SessionID     string `json:"session_id"`
	MemberID      string `json:"member_id"`
	Status        string `json:"status"`
	FirstTimer    bool   `json:"first_timer"`
	MarkedAt      string `json:"marked_at"`
	SourceStation string `json:"source_station"`
}

func (s *PostgresStore) Upsert(ctx context.Context, input MarkInput) (*AttendeeMark, UpsertOutcome, error) {
	now := requestcontext.Now(ctx)

	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("begin mark tx: %w", err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	// The WHERE clause makes losing writes a no-op instead of a conflict:
	// only a strictly later client timestamp replaces the row. RETURNING
	// is empty when the guard rejects the update.
	const upsert = `
		INSERT INTO attendee_marks
			(id, session_id, member_id, status, first_timer, marked_at, source_station, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (session_id, member_id) DO UPDATE SET
			status         = EXCLUDED.status,
			first_timer    = EXCLUDED.first_timer,
			marked_at      = EXCLUDED.marked_at,
			source_station = EXCLUDED.source_station,
			updated_at     = EXCLUDED.updated_at
		WHERE EXCLUDED.marked_at > attendee_marks.marked_at
		RETURNING id, session_id, member_id, status, first_timer, marked_at, source_station, created_at, updated_at,
			(xmax = 0) AS inserted
	`
	var (
		mark     AttendeeMark
		inserted bool
	)
	err = txn.QueryRowContext(ctx, upsert,
		uuid.New(), uuid.UUID(input.SessionID), uuid.UUID(input.MemberID),
		string(input.Status), input.FirstTimer, input.MarkedAt,
		uuid.UUID(input.SourceStation), now,
	).Scan(
		(*uuid.UUID)(&mark.ID), (*uuid.UUID)(&mark.SessionID), (*uuid.UUID)(&mark.MemberID),
		(*string)(&mark.Status), &mark.FirstTimer, &mark.MarkedAt,
		(*uuid.UUID)(&mark.SourceStation), &mark.CreatedAt, &mark.UpdatedAt,
		&inserted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Stale write: a mark with an equal or later timestamp is already
		// in place. Return the survivor; the commit keeps nothing.
		survivor, err := s.findTx(ctx, txn, input.SessionID, input.MemberID)
		if err != nil {
			return nil, "", err
		}
		if err := txn.Commit(); err != nil {
			return nil, "", fmt.Errorf("commit mark tx: %w", err)
		}
		return survivor, OutcomeStale, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("upsert mark: %w", err)
	}

	outcome := OutcomeUpdated
	kind := "mark.updated"
	if inserted {
		outcome = OutcomeInserted
		kind = "mark.created"
	}

	if err := s.appendOutbox(ctx, txn, kind, &mark, now); err != nil {
		return nil, "", err
	}

	if err := txn.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit mark tx: %w", err)
	}
	return &mark, outcome, nil
}

func (s *PostgresStore) appendOutbox(ctx context.Context, txn *sql.Tx, kind string, mark *AttendeeMark, now time.Time) error {
	payload, err := json.Marshal(outboxPayload{
		Kind:          kind,
		MarkID:        mark.ID.String(),
		SessionID:     mark.SessionID.String(),
		MemberID:      mark.MemberID.String(),
		Status:        string(mark.Status),
		FirstTimer:    mark.FirstTimer,
		MarkedAt:      mark.MarkedAt.UTC().Format(time.RFC3339Nano),
		SourceStation: mark.SourceStation.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	const insert = `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, 'attendee_mark', $2, $3, $4, $5)
	`
	if _, err := txn.ExecContext(ctx, insert,
		uuid.New(), mark.SessionID.String(), kind, payload, now,
	); err != nil {
		return fmt.Errorf("append outbox: %w", err)
	}
	return nil
}

func (s *PostgresStore) findTx(ctx context.Context, txn *sql.Tx, sessionID id.SessionID, memberID id.MemberID) (*AttendeeMark, error) {
	const query = `
		SELECT id, session_id, member_id, status, first_timer, marked_at, source_station, created_at, updated_at
		FROM attendee_marks
		WHERE session_id = $1 AND member_id = $2
	`
	var mark AttendeeMark
	err := txn.QueryRowContext(ctx, query, uuid.UUID(sessionID), uuid.UUID(memberID)).Scan(
		(*uuid.UUID)(&mark.ID), (*uuid.UUID)(&mark.SessionID), (*uuid.UUID)(&mark.MemberID),
		(*string)(&mark.Status), &mark.FirstTimer, &mark.MarkedAt,
		(*uuid.UUID)(&mark.SourceStation), &mark.CreatedAt, &mark.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find surviving mark: %w", err)
	}
	return &mark, nil
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID id.SessionID) ([]*AttendeeMark, error) {
	const query = `
		SELECT id, session_id, member_id, status, first_timer, marked_at, source_station, created_at, updated_at
		FROM attendee_marks
		WHERE session_id = $1
		ORDER BY member_id
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list marks: %w", err)
	}
	defer rows.Close()
	return scanMarks(rows)
}

func (s *PostgresStore) ListBySessions(ctx context.Context, sessionIDs []id.SessionID) (map[id.SessionID][]*AttendeeMark, error) {
	out := make(map[id.SessionID][]*AttendeeMark, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		marks, err := s.ListBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		out[sessionID] = marks
	}
	return out, nil
}

func scanMarks(rows *sql.Rows) ([]*AttendeeMark, error) {
	var out []*AttendeeMark
	for rows.Next() {
		var mark AttendeeMark
		if err := rows.Scan(
			(*uuid.UUID)(&mark.ID), (*uuid.UUID)(&mark.SessionID), (*uuid.UUID)(&mark.MemberID),
			(*string)(&mark.Status), &mark.FirstTimer, &mark.MarkedAt,
			(*uuid.UUID)(&mark.SourceStation), &mark.CreatedAt, &mark.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		out = append(out, &mark)
	}
	return out, rows.Err()
}
