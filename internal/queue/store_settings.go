package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const settingAutoProcess = "auto_process"

// SeedAutoProcess stores the initial auto-process value unless one is already
// persisted. It returns the effective value.
func (s *Store) SeedAutoProcess(ctx context.Context, initial bool) (bool, error) {
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
		settingAutoProcess,
		strconv.FormatBool(initial),
		formatTime(time.Now()),
	); err != nil {
		return false, fmt.Errorf("seed auto-process: %w", err)
	}
	return s.AutoProcessEnabled(ctx)
}

// AutoProcessEnabled reads the live auto-process flag. An unset flag reads as
// disabled.
func (s *Store) AutoProcessEnabled(ctx context.Context) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT value FROM settings WHERE key = ?`, settingAutoProcess).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read auto-process: %w", err)
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse auto-process %q: %w", raw, err)
	}
	return enabled, nil
}

// SetAutoProcess persists the auto-process flag.
func (s *Store) SetAutoProcess(ctx context.Context, enabled bool) error {
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		settingAutoProcess,
		strconv.FormatBool(enabled),
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("set auto-process: %w", err)
	}
	return nil
}
