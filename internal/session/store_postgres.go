package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"

	"github.com/google/uuid"
)

// PostgresStore persists service sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Resolve is the atomic insert-if-absent on the unique key tuple. The
// ON CONFLICT DO NOTHING plus re-select avoids the check-then-insert race:
// two concurrent resolutions for the same key both land on the row that
// won the insert.
func (s *PostgresStore) Resolve(ctx context.Context, key Key) (*ServiceSession, error) {
	const insert = `
		INSERT INTO service_sessions (id, service_date, service_type, ministry_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service_date, service_type, ministry_id) DO NOTHING
	`
	candidate := uuid.New()
	now := requestcontext.Now(ctx)
	if _, err := s.db.ExecContext(ctx, insert,
		candidate, key.Date, string(key.ServiceType), key.MinistryID, now,
	); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	const query = `
		SELECT id, service_date, service_type, ministry_id, created_at
		FROM service_sessions
		WHERE service_date = $1 AND service_type = $2 AND ministry_id = $3
	`
	row := s.db.QueryRowContext(ctx, query, key.Date, string(key.ServiceType), key.MinistryID)
	return scanSession(row)
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*ServiceSession, error) {
	const query = `
		SELECT id, service_date, service_type, ministry_id, created_at
		FROM service_sessions
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(sessionID))
	found, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
		}
		return nil, err
	}
	return found, nil
}

func (s *PostgresStore) ListRange(ctx context.Context, from, to time.Time) ([]*ServiceSession, error) {
	const query = `
		SELECT id, service_date, service_type, ministry_id, created_at
		FROM service_sessions
		WHERE service_date BETWEEN $1 AND $2
		ORDER BY service_date, service_type
	`
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*ServiceSession
	for rows.Next() {
		found, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, found)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*ServiceSession, error) {
	var (
		rawID       uuid.UUID
		date        time.Time
		serviceType string
		ministryID  string
		createdAt   time.Time
	)
	if err := row.Scan(&rawID, &date, &serviceType, &ministryID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	key, err := NewKey(date, id.ServiceType(serviceType), ministryID)
	if err != nil {
		return nil, fmt.Errorf("stored session key invalid: %w", err)
	}
	return &ServiceSession{
		ID:        id.SessionID(rawID),
		Key:       key,
		CreatedAt: createdAt,
	}, nil
}
