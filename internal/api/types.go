package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Analysis mirrors queue.Analysis.
type Analysis struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Bullets     []string `json:"bullets"`
	Tags        []string `json:"tags"`
	Theme       string   `json:"theme,omitempty"`
	Style       string   `json:"style,omitempty"`
}

// Item describes a work item in a transport-friendly format.
type Item struct {
	ID              int64     `json:"id"`
	Filename        string    `json:"filename"`
	SourcePath      string    `json:"sourcePath,omitempty"`
	Status          string    `json:"status"`
	Analysis        *Analysis `json:"analysis,omitempty"`
	RemoteImageID   string    `json:"remoteImageId,omitempty"`
	RemoteListingID string    `json:"remoteListingId,omitempty"`
	ArchivedPath    string    `json:"archivedPath,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	CreatedAt       string    `json:"createdAt,omitempty"`
	UpdatedAt       string    `json:"updatedAt,omitempty"`
}

// LogEntry is one action log row. ItemID is omitted for watcher events.
type LogEntry struct {
	ID        int64  `json:"id"`
	ItemID    *int64 `json:"itemId,omitempty"`
	Stage     string `json:"stage"`
	Outcome   string `json:"outcome"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

// ItemListResponse wraps GET /api/items.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// ItemDetailResponse wraps GET /api/items/{id}.
type ItemDetailResponse struct {
	Item Item       `json:"item"`
	Logs []LogEntry `json:"logs"`
}

// LogListResponse wraps GET /api/logs.
type LogListResponse struct {
	Entries []LogEntry `json:"entries"`
}

// RunResult reports a synchronous pipeline run (retry or upload).
type RunResult struct {
	Success   bool   `json:"success"`
	ItemID    int64  `json:"itemId,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Item      *Item  `json:"item,omitempty"`
}

// Settings is the body of GET and PUT /api/settings.
type Settings struct {
	AutoProcess bool `json:"autoProcess"`
}

// UpdateSettingsRequest is the body of PUT /api/settings. AutoProcess is a
// pointer so an omitted field is rejected rather than read as false.
type UpdateSettingsRequest struct {
	AutoProcess *bool `json:"autoProcess" validate:"required"`
}

// DaemonStatus wraps GET /api/status.
type DaemonStatus struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	WatchDir    string         `json:"watchDir"`
	ArchiveDir  string         `json:"archiveDir"`
	DatabaseURL string         `json:"databasePath"`
	LockPath    string         `json:"lockPath"`
	AutoProcess bool           `json:"autoProcess"`
	InFlight    int            `json:"inFlight"`
	ItemCounts  map[string]int `json:"itemCounts"`
	Preflight   []CheckResult  `json:"preflight,omitempty"`
}

// CheckResult mirrors a preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
