package syncqueue

import (
	"context"
	"database/sql"
	"errors"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setMeta(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// SetMeta stores a station setting such as its device id or tokens.
func (q *Queue) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, q.db, key, value)
}

// Meta returns a stored setting, or "" when it was never set.
func (q *Queue) Meta(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
