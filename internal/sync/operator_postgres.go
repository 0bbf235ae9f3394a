package sync

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

// PostgresOperatorStore persists parked marks in the operator_queue
// table so escalations survive server restarts and are visible to every
// staff console.
type PostgresOperatorStore struct {
	db *sql.DB
}

func NewPostgresOperatorStore(db *sql.DB) *PostgresOperatorStore {
	return &PostgresOperatorStore{db: db}
}

func (s *PostgresOperatorStore) Park(ctx context.Context, entry OperatorEntry) error {
	if entry.ID.IsNil() {
		entry.ID = id.NewMarkID()
	}
	if entry.ParkedAt.IsZero() {
		entry.ParkedAt = requestcontext.Now(ctx)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operator_queue
			(id, local_id, station_id, member_id, session_key, status, reason, detail, marked_at, parked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (station_id, local_id) DO NOTHING`,
		uuid.UUID(entry.ID), entry.LocalID, uuid.UUID(entry.StationID), uuid.UUID(entry.MemberID),
		entry.SessionKey, string(entry.Status), entry.Reason, entry.Detail,
		entry.MarkedAt.UTC(), entry.ParkedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("park operator entry: %w", err)
	}
	return nil
}

func (s *PostgresOperatorStore) ListOpen(ctx context.Context) ([]*OperatorEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, local_id, station_id, member_id, session_key, status, reason, detail,
		       marked_at, parked_at, resolved_at
		FROM operator_queue
		WHERE resolved_at IS NULL
		ORDER BY parked_at`)
	if err != nil {
		return nil, fmt.Errorf("list operator entries: %w", err)
	}
	defer rows.Close()

	var entries []*OperatorEntry
	for rows.Next() {
		var (
			entry                        OperatorEntry
			entryID, stationID, memberID uuid.UUID
			status                       string
			markedAt, parkedAt           time.Time
			resolvedAt                   sql.NullTime
		)
		if err := rows.Scan(&entryID, &entry.LocalID, &stationID, &memberID, &entry.SessionKey,
			&status, &entry.Reason, &entry.Detail, &markedAt, &parkedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan operator entry: %w", err)
		}

		entry.ID = id.MarkID(entryID)
		entry.StationID = id.StationID(stationID)
		entry.MemberID = id.MemberID(memberID)
		entry.Status = id.AttendanceStatus(status)
		entry.MarkedAt = markedAt.UTC()
		entry.ParkedAt = parkedAt.UTC()
		if resolvedAt.Valid {
			t := resolvedAt.Time.UTC()
			entry.ResolvedAt = &t
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (s *PostgresOperatorStore) Resolve(ctx context.Context, entryID id.MarkID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE operator_queue SET resolved_at = $1
		WHERE id = $2 AND resolved_at IS NULL`,
		requestcontext.Now(ctx).UTC(), uuid.UUID(entryID),
	)
	if err != nil {
		return fmt.Errorf("resolve operator entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve operator entry: %w", err)
	}
	if affected == 0 {
		// Distinguish missing from already resolved.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM operator_queue WHERE id = $1)`, uuid.UUID(entryID),
		).Scan(&exists); err != nil {
			return fmt.Errorf("resolve operator entry: %w", err)
		}
		if !exists {
			return fmt.Errorf("operator entry %s: %w", entryID.String(), sentinel.ErrNotFound)
		}
	}
	return nil
}
