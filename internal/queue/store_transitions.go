package queue

import (
	"context"
	"fmt"
	"time"
)

// StageRecovered is the action log stage written by FailStaleProcessing.
const StageRecovered = "recovered"

// FailStaleProcessing moves items stuck in processing since before cutoff to
// error with the given message, writing a recovered/info log entry for each.
// It returns the affected item ids.
func (s *Store) FailStaleProcessing(ctx context.Context, cutoff time.Time, message string) ([]int64, error) {
	ctx = ensureContext(ctx)
	var ids []int64
	err := retryOnBusy(ctx, func() error {
		ids = ids[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM items WHERE status = ? AND updated_at < ? ORDER BY id`,
			StatusProcessing,
			formatTime(cutoff),
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		now := formatTime(time.Now())
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE items SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
				StatusError, message, now, id,
			); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO action_log (item_id, stage, outcome, message, created_at) VALUES (?, ?, ?, ?, ?)`,
				id, StageRecovered, OutcomeInfo, message, now,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("fail stale processing: %w", err)
	}
	return ids, nil
}
