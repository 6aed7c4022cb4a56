// Package syncqueue is the capture station's durable buffer of writes that
// could not reach the backend. Each item carries an explicit status; a flush
// replays pending items in insertion order and leaves failures pending for
// the next flush.
package syncqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"staffattend/internal/apperrors"
	"staffattend/internal/logger"
	"staffattend/internal/mutation"
)

// Status of a queued item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
)

// Item is one buffered mutation.
type Item struct {
	ID int64 `json:"id"`
	mutation.Mutation
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Replayer sends a mutation to the backend.
type Replayer interface {
	Replay(ctx context.Context, m mutation.Mutation) error
}

// ReplayFunc adapts a function to Replayer.
type ReplayFunc func(ctx context.Context, m mutation.Mutation) error

func (f ReplayFunc) Replay(ctx context.Context, m mutation.Mutation) error { return f(ctx, m) }

// Queue is a SQLite-backed sync queue. It also holds the station's cached
// gallery, see gallery.go.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name   TEXT    NOT NULL,
	record_id    TEXT    NOT NULL,
	operation    TEXT    NOT NULL,
	payload      TEXT    NOT NULL DEFAULT '',
	status       TEXT    NOT NULL DEFAULT 'pending',
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT    NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	processed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, id);

CREATE TABLE IF NOT EXISTS gallery (
	staff_id  TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	embedding TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Open opens or creates the queue database at path.
func Open(path string) (*Queue, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create queue dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate queue: %w", err)
	}
	return &Queue{db: db, now: time.Now}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// SetClock overrides the time source.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// Enqueue appends a mutation.
func (q *Queue) Enqueue(ctx context.Context, m mutation.Mutation) (Item, error) {
	if err := m.Validate(); err != nil {
		return Item{}, err
	}
	created := q.now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_queue (table_name, record_id, operation, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.Table, m.RecordID, string(m.Op), string(m.Payload), created.UnixNano())
	if err != nil {
		return Item{}, fmt.Errorf("enqueue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Item{}, err
	}
	return Item{ID: id, Mutation: m, Status: StatusPending, CreatedAt: created}, nil
}

const itemColumns = `id, table_name, record_id, operation, payload, status, attempts, last_error, created_at, processed_at`

func scanItems(rows *sql.Rows) ([]Item, error) {
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var (
			it        Item
			payload   string
			created   int64
			processed sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.Table, &it.RecordID, &it.Op, &payload, &it.Status,
			&it.Attempts, &it.LastError, &created, &processed); err != nil {
			return nil, err
		}
		if payload != "" {
			it.Payload = []byte(payload)
		}
		it.CreatedAt = time.Unix(0, created).UTC()
		if processed.Valid {
			t := time.Unix(0, processed.Int64).UTC()
			it.ProcessedAt = &t
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Pending returns pending items oldest first.
func (q *Queue) Pending(ctx context.Context) ([]Item, error) {
	return q.List(ctx, StatusPending)
}

// List returns items with status, or every item when status is empty,
// oldest first.
func (q *Queue) List(ctx context.Context, status Status) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM sync_queue`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	rows, err := q.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

// Stats counts items per status.
type Stats struct {
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'processed' THEN 1 ELSE 0 END), 0)
		FROM sync_queue
	`).Scan(&s.Pending, &s.Processed)
	return s, err
}

// FlushResult summarizes one flush.
type FlushResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Flush replays every pending item in insertion order. A replayed item is
// marked processed; a failed one has its attempts and last error recorded and
// stays pending. onItem, when set, is called after each item with the replay
// error. Flush stops early only when ctx is done or the local database fails.
func (q *Queue) Flush(ctx context.Context, r Replayer, onItem func(Item, error)) (FlushResult, error) {
	var res FlushResult
	items, err := q.Pending(ctx)
	if err != nil {
		return res, err
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		replayErr := r.Replay(ctx, it.Mutation)
		// The outcome is recorded even if ctx was cancelled during the replay.
		record := context.WithoutCancel(ctx)
		if replayErr == nil {
			now := q.now().UTC()
			if _, err := q.db.ExecContext(record, `
				UPDATE sync_queue SET status = 'processed', attempts = attempts + 1, last_error = '', processed_at = ?
				WHERE id = ?
			`, now.UnixNano(), it.ID); err != nil {
				return res, fmt.Errorf("mark item %d processed: %w", it.ID, err)
			}
			it.Status, it.ProcessedAt, it.LastError = StatusProcessed, &now, ""
			res.Processed++
		} else {
			if errors.Is(replayErr, context.Canceled) || errors.Is(replayErr, context.DeadlineExceeded) {
				return res, replayErr
			}
			if _, err := q.db.ExecContext(record, `
				UPDATE sync_queue SET attempts = attempts + 1, last_error = ? WHERE id = ?
			`, replayErr.Error(), it.ID); err != nil {
				return res, fmt.Errorf("record failure of item %d: %w", it.ID, err)
			}
			it.LastError = replayErr.Error()
			res.Failed++
			logger.Debug().Err(replayErr).Int64("item", it.ID).Str("table", it.Table).Msg("sync item failed")
		}
		it.Attempts++
		if onItem != nil {
			onItem(it, replayErr)
		}
	}
	return res, nil
}

// Discard deletes a single item regardless of status.
func (q *Queue) Discard(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(fmt.Sprintf("queue item %d not found", id))
	}
	return nil
}

// Purge deletes processed items processed more than olderThan ago and
// returns how many were removed.
func (q *Queue) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := q.now().Add(-olderThan).UnixNano()
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE status = 'processed' AND processed_at <= ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
