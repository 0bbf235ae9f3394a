package offline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_marks (
	local_id         INTEGER PRIMARY KEY AUTOINCREMENT,
	station_id       TEXT NOT NULL,
	session_key      TEXT NOT NULL,
	member_id        TEXT NOT NULL,
	status           TEXT NOT NULL,
	first_timer      INTEGER NOT NULL DEFAULT 0,
	client_timestamp TIMESTAMP NOT NULL,
	token            TEXT NOT NULL,
	state            TEXT NOT NULL DEFAULT 'queued',
	attempts         INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT NOT NULL DEFAULT '',
	enqueued_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_marks_state ON pending_marks (state, local_id);
`

// SQLiteQueue is the durable station-side queue. One database file per
// station; entries survive process restarts, which is the whole point.
type SQLiteQueue struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the queue database at
// path. Use ":memory:" for throwaway instances.
func OpenSQLite(path string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids busy errors
	// from the station's sync goroutine racing the scan loop.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize queue schema: %w", err)
	}
	// The queue is single-process, so any 'sending' claim found on open
	// belongs to a run that died mid-sweep. Sweeps only claim 'queued'
	// rows; without this reset such marks would never sync.
	if _, err := db.Exec(`UPDATE pending_marks SET state = 'queued' WHERE state = 'sending'`); err != nil {
		db.Close()
		return nil, fmt.Errorf("recover claimed marks: %w", err)
	}
	return &SQLiteQueue{db: db}, nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, mark PendingMark) (*PendingMark, error) {
	now := requestcontext.Now(ctx)
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_marks
			(station_id, session_key, member_id, status, first_timer, client_timestamp, token, state, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'queued', ?)`,
		mark.StationID.String(), mark.SessionKey, mark.MemberID.String(), string(mark.Status),
		boolToInt(mark.FirstTimer), mark.ClientTimestamp.UTC(), mark.Token, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue pending mark: %w", err)
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue pending mark: %w", err)
	}

	mark.LocalID = localID
	mark.State = StateQueued
	mark.Attempts = 0
	mark.LastError = ""
	mark.EnqueuedAt = now
	return &mark, nil
}

func (q *SQLiteQueue) PeekBatch(ctx context.Context, n int) ([]*PendingMark, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT local_id, station_id, session_key, member_id, status, first_timer,
		       client_timestamp, token, state, attempts, last_error, enqueued_at
		FROM pending_marks
		WHERE state = 'queued'
		ORDER BY local_id
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("peek pending marks: %w", err)
	}
	defer rows.Close()

	marks, err := scanPendingMarks(rows)
	if err != nil {
		return nil, err
	}

	for _, mark := range marks {
		if _, err := q.db.ExecContext(ctx,
			`UPDATE pending_marks SET state = 'sending' WHERE local_id = ?`, mark.LocalID); err != nil {
			return nil, fmt.Errorf("claim pending mark %d: %w", mark.LocalID, err)
		}
		mark.State = StateSending
	}
	return marks, nil
}

func (q *SQLiteQueue) Ack(ctx context.Context, localID int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM pending_marks WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("ack pending mark %d: %w", localID, err)
	}
	return requireRow(res, localID)
}

func (q *SQLiteQueue) Reject(ctx context.Context, localID int64, reason string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE pending_marks SET state = 'rejected', last_error = ? WHERE local_id = ?`, reason, localID)
	if err != nil {
		return fmt.Errorf("reject pending mark %d: %w", localID, err)
	}
	return requireRow(res, localID)
}

func (q *SQLiteQueue) Requeue(ctx context.Context, localID int64, reason string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE pending_marks
		SET state = 'queued', attempts = attempts + 1, last_error = ?
		WHERE local_id = ?`, reason, localID)
	if err != nil {
		return fmt.Errorf("requeue pending mark %d: %w", localID, err)
	}
	return requireRow(res, localID)
}

func (q *SQLiteQueue) Release(ctx context.Context, localID int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE pending_marks SET state = 'queued' WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("release pending mark %d: %w", localID, err)
	}
	return requireRow(res, localID)
}

func (q *SQLiteQueue) ListRejected(ctx context.Context) ([]*PendingMark, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT local_id, station_id, session_key, member_id, status, first_timer,
		       client_timestamp, token, state, attempts, last_error, enqueued_at
		FROM pending_marks
		WHERE state = 'rejected'
		ORDER BY local_id`)
	if err != nil {
		return nil, fmt.Errorf("list rejected marks: %w", err)
	}
	defer rows.Close()
	return scanPendingMarks(rows)
}

func (q *SQLiteQueue) CountQueued(ctx context.Context, stationID id.StationID) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_marks WHERE state = 'queued' AND station_id = ?`,
		stationID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count queued marks: %w", err)
	}
	return count, nil
}

func scanPendingMarks(rows *sql.Rows) ([]*PendingMark, error) {
	var marks []*PendingMark
	for rows.Next() {
		var (
			mark               PendingMark
			stationRaw, member string
			status, state      string
			firstTimer         int
			clientTS, enqueued time.Time
		)
		if err := rows.Scan(&mark.LocalID, &stationRaw, &mark.SessionKey, &member, &status,
			&firstTimer, &clientTS, &mark.Token, &state, &mark.Attempts, &mark.LastError, &enqueued); err != nil {
			return nil, fmt.Errorf("scan pending mark: %w", err)
		}

		stationID, err := id.ParseStationID(stationRaw)
		if err != nil {
			return nil, fmt.Errorf("scan pending mark %d: %w", mark.LocalID, err)
		}
		memberID, err := id.ParseMemberID(member)
		if err != nil {
			return nil, fmt.Errorf("scan pending mark %d: %w", mark.LocalID, err)
		}

		mark.StationID = stationID
		mark.MemberID = memberID
		mark.Status = id.AttendanceStatus(status)
		mark.FirstTimer = firstTimer != 0
		mark.ClientTimestamp = clientTS.UTC()
		mark.State = SyncState(state)
		mark.EnqueuedAt = enqueued.UTC()
		marks = append(marks, &mark)
	}
	return marks, rows.Err()
}

func requireRow(res sql.Result, localID int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pending mark %d: %w", localID, err)
	}
	if affected == 0 {
		return fmt.Errorf("pending mark %d: %w", localID, sentinel.ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
