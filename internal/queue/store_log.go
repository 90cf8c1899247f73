package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultLogLimit = 200

// AppendLog records one action log entry. itemID is nil for process-level events.
func (s *Store) AppendLog(ctx context.Context, itemID *int64, stage string, outcome Outcome, message string) (*LogEntry, error) {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return nil, fmt.Errorf("append log: stage is required")
	}
	switch outcome {
	case OutcomeInfo, OutcomeSuccess, OutcomeError:
	default:
		return nil, fmt.Errorf("append log: unknown outcome %q", outcome)
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO action_log (item_id, stage, outcome, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		nullableInt64(itemID),
		stage,
		outcome,
		message,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("append log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	entry := &LogEntry{ID: id, Stage: stage, Outcome: outcome, Message: message, CreatedAt: now}
	if itemID != nil {
		v := *itemID
		entry.ItemID = &v
	}
	return entry, nil
}

// LogsForItem returns every entry for an item in the order they were written.
func (s *Store) LogsForItem(ctx context.Context, itemID int64) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+logColumns+` FROM action_log WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("logs for item: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RecentLogs returns up to limit entries, newest first. A zero or negative
// limit uses the default.
func (s *Store) RecentLogs(ctx context.Context, limit int) ([]*LogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+logColumns+` FROM action_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
