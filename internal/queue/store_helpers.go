package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const itemColumns = "id, filename, source_path, status, analysis_json, remote_image_id, remote_listing_id, archived_path, error_message, created_at, updated_at"

const logColumns = "id, item_id, stage, outcome, message, created_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanItem(scanner rowScanner) (*Item, error) {
	var (
		id           int64
		filename     string
		sourcePath   sql.NullString
		statusStr    string
		analysisRaw  sql.NullString
		remoteImage  sql.NullString
		remoteList   sql.NullString
		archivedPath sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&filename,
		&sourcePath,
		&statusStr,
		&analysisRaw,
		&remoteImage,
		&remoteList,
		&archivedPath,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		Filename:        filename,
		SourcePath:      sourcePath.String,
		Status:          Status(statusStr),
		RemoteImageID:   remoteImage.String,
		RemoteListingID: remoteList.String,
		ArchivedPath:    archivedPath.String,
		ErrorMessage:    errorMessage.String,
	}
	if analysisRaw.Valid && analysisRaw.String != "" {
		var analysis Analysis
		if err := json.Unmarshal([]byte(analysisRaw.String), &analysis); err != nil {
			return nil, fmt.Errorf("decode analysis for item %d: %w", id, err)
		}
		item.Analysis = &analysis
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func scanLogEntry(scanner rowScanner) (*LogEntry, error) {
	var (
		id         int64
		itemID     sql.NullInt64
		stage      string
		outcome    string
		message    string
		createdRaw string
	)
	if err := scanner.Scan(&id, &itemID, &stage, &outcome, &message, &createdRaw); err != nil {
		return nil, err
	}
	entry := &LogEntry{
		ID:      id,
		Stage:   stage,
		Outcome: Outcome(outcome),
		Message: message,
	}
	if itemID.Valid {
		v := itemID.Int64
		entry.ItemID = &v
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

func encodeAnalysis(analysis *Analysis) (any, error) {
	if analysis == nil {
		return nil, nil
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	return string(payload), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

// timeLayout is RFC 3339 with a fixed-width fraction so stored timestamps
// sort lexically in SQL comparisons.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
