package api

import (
	"draftdrop/internal/queue"
	"draftdrop/internal/services"
	"draftdrop/internal/workflow"
)

// FromItem converts a queue record to its API representation.
func FromItem(item *queue.Item) Item {
	if item == nil {
		return Item{}
	}
	dto := Item{
		ID:              item.ID,
		Filename:        item.Filename,
		SourcePath:      item.SourcePath,
		Status:          string(item.Status),
		RemoteImageID:   item.RemoteImageID,
		RemoteListingID: item.RemoteListingID,
		ArchivedPath:    item.ArchivedPath,
		ErrorMessage:    item.ErrorMessage,
	}
	if a := item.Analysis; a != nil {
		dto.Analysis = &Analysis{
			Title:       a.Title,
			Description: a.Description,
			Bullets:     a.Bullets,
			Tags:        a.Tags,
			Theme:       a.Theme,
			Style:       a.Style,
		}
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromItems converts items in order.
func FromItems(items []*queue.Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// FromLogEntry converts an action log row.
func FromLogEntry(entry *queue.LogEntry) LogEntry {
	if entry == nil {
		return LogEntry{}
	}
	return LogEntry{
		ID:        entry.ID,
		ItemID:    entry.ItemID,
		Stage:     entry.Stage,
		Outcome:   string(entry.Outcome),
		Message:   entry.Message,
		CreatedAt: entry.CreatedAt.UTC().Format(dateTimeFormat),
	}
}

// FromLogEntries converts action log rows in order.
func FromLogEntries(entries []*queue.LogEntry) []LogEntry {
	out := make([]LogEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromLogEntry(entry))
	}
	return out
}

// FromResult converts a pipeline run result. The error text is the same
// human-readable message stored on the item.
func FromResult(res workflow.Result) RunResult {
	out := RunResult{Success: res.Success, ItemID: res.ItemID}
	if res.Err != nil {
		out.Error = services.Message(res.Err)
		out.ErrorKind = services.ErrorKind(res.Err)
	}
	return out
}

// MergeItemCounts returns counts for every status, including zeros.
func MergeItemCounts(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}
