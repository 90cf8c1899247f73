package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of an item.
type Status string

const (
	// StatusPending is only reachable through an explicit retry reset.
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var allStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusError}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, error) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", value)
}

// IsTerminal reports whether no run is expected to change the status further.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Analysis is the structured description returned by the image analyzer.
type Analysis struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Bullets     []string `json:"bullets"`
	Tags        []string `json:"tags"`
	Theme       string   `json:"theme"`
	Style       string   `json:"style"`
}

// Item is one file tracked from detection to completion or failure.
type Item struct {
	ID              int64
	Filename        string
	SourcePath      string
	Status          Status
	Analysis        *Analysis
	RemoteImageID   string
	RemoteListingID string
	ArchivedPath    string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SetFailed marks the item as errored with the provided message.
func (i *Item) SetFailed(message string) {
	i.Status = StatusError
	i.ErrorMessage = strings.TrimSpace(message)
}

// ResetOutputs clears everything a run produces so a retry starts clean.
func (i *Item) ResetOutputs() {
	i.Analysis = nil
	i.RemoteImageID = ""
	i.RemoteListingID = ""
	i.ErrorMessage = ""
}

// Outcome classifies an action log entry.
type Outcome string

const (
	OutcomeInfo    Outcome = "info"
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// LogEntry is one append-only action log row. ItemID is nil for
// process-level events such as watcher errors.
type LogEntry struct {
	ID        int64
	ItemID    *int64
	Stage     string
	Outcome   Outcome
	Message   string
	CreatedAt time.Time
}
