package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CreateItem inserts a new item in processing state for the given source file.
func (s *Store) CreateItem(ctx context.Context, sourcePath string) (*Item, error) {
	filename := filepath.Base(sourcePath)
	if strings.TrimSpace(sourcePath) == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, fmt.Errorf("create item: invalid source path %q", sourcePath)
	}
	timestamp := formatTime(time.Now())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO items (filename, source_path, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		filename,
		sourcePath,
		StatusProcessing,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches an item by identifier. A missing item returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// Update persists every mutable field of an existing item and refreshes UpdatedAt.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	analysis, err := encodeAnalysis(item.Analysis)
	if err != nil {
		return err
	}
	item.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET source_path = ?, status = ?, analysis_json = ?, remote_image_id = ?,
             remote_listing_id = ?, archived_path = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(item.SourcePath),
		item.Status,
		analysis,
		nullableString(item.RemoteImageID),
		nullableString(item.RemoteListingID),
		nullableString(item.ArchivedPath),
		nullableString(item.ErrorMessage),
		formatTime(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update item %d: %w", item.ID, sql.ErrNoRows)
	}
	return nil
}

// RecordListing stores a remote listing id without touching any other
// column. It is the fallback when a full Update of a drafted item fails, so
// the listing is never forgotten.
func (s *Store) RecordListing(ctx context.Context, id int64, listingID string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE items SET remote_listing_id = ?, updated_at = ? WHERE id = ?`,
		nullableString(listingID), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("record listing: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("record listing for item %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// List returns items filtered by status set (or all items when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM items`
	orderClause := ` ORDER BY id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimedFilenames returns the distinct filenames of items that are
// processing or completed. The dedup registry is seeded from this set.
func (s *Store) ClaimedFilenames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT DISTINCT filename FROM items WHERE status IN (?, ?) ORDER BY filename`,
		StatusProcessing,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("claimed filenames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Stats returns item counts keyed by status. Every known status is present.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}
