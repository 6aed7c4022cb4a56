package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"staffattend/internal/face"
)

const metaGalleryRefreshed = "gallery_refreshed_at"

// ReplaceGallery swaps the cached gallery for candidates in one transaction.
func (q *Queue) ReplaceGallery(ctx context.Context, candidates []face.Candidate) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM gallery`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO gallery (staff_id, name, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candidates {
		raw, err := json.Marshal(c.Embedding)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.StaffID, c.Name, string(raw)); err != nil {
			return fmt.Errorf("cache %s: %w", c.StaffID, err)
		}
	}
	if err := setMeta(ctx, tx, metaGalleryRefreshed, q.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// Gallery returns the cached candidates and when they were last refreshed.
// A zero time means the gallery was never downloaded.
func (q *Queue) Gallery(ctx context.Context) ([]face.Candidate, time.Time, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT staff_id, name, embedding FROM gallery ORDER BY staff_id`)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	var res []face.Candidate
	for rows.Next() {
		var (
			c   face.Candidate
			raw string
		)
		if err := rows.Scan(&c.StaffID, &c.Name, &raw); err != nil {
			return nil, time.Time{}, err
		}
		if err := json.Unmarshal([]byte(raw), &c.Embedding); err != nil {
			return nil, time.Time{}, fmt.Errorf("decode cached embedding for %s: %w", c.StaffID, err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}

	value, err := q.Meta(ctx, metaGalleryRefreshed)
	if err != nil {
		return nil, time.Time{}, err
	}
	var refreshed time.Time
	if value != "" {
		refreshed, _ = time.Parse(time.RFC3339Nano, value)
	}
	return res, refreshed, nil
}
