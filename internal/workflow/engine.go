package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"draftdrop/internal/config"
	"draftdrop/internal/logging"
	"draftdrop/internal/metrics"
	"draftdrop/internal/notifications"
	"draftdrop/internal/queue"
	"draftdrop/internal/services/catalog"
)

// Stage names used for structured logs, metrics and error context.
const (
	StageCreate  = "create"
	StageAnalyze = "analyze"
	StageUpload  = "upload"
	StageDraft   = "draft"
	StageArchive = "archive"
	StageRetry   = "retry"
)

// Action log stage values.
const (
	ActionProcessingStarted = "processing_started"
	ActionAnalysisComplete  = "analysis_complete"
	ActionUploadComplete    = "upload_complete"
	ActionDraftCreated      = "draft_created"
	ActionError             = "error"
	ActionArchive           = "archive"
	ActionRetryRequested    = "retry_requested"
	ActionPersist           = "persist"
)

var (
	// ErrItemNotFound is returned by Retry for an unknown item id.
	ErrItemNotFound = errors.New("item not found")
	// ErrItemBusy is returned by Retry while a run for the item is in flight.
	ErrItemBusy = errors.New("item is already being processed")
	// ErrEngineClosed is returned for runs requested after Shutdown began.
	ErrEngineClosed = errors.New("pipeline engine is shutting down")
)

// Analyzer describes an image.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) (queue.Analysis, error)
}

// Catalog uploads images and creates draft listings.
type Catalog interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
	CreateDraft(ctx context.Context, imageID string, draft catalog.Draft) (string, error)
}

// Result reports the outcome of one run. ItemID is zero when the run failed
// before an item was created.
type Result struct {
	Success bool
	ItemID  int64
	Err     error
}

// Engine executes pipeline runs.
type Engine struct {
	store      *queue.Store
	analyzer   Analyzer
	catalog    Catalog
	logger     *slog.Logger
	metrics    *metrics.Recorder
	notifier   notifications.Service
	watchDir   string
	archiveDir string

	sem      *semaphore.Weighted
	inFlight atomic.Int64

	// runMu orders runs.Add against Shutdown so no run is added once
	// Shutdown is waiting.
	runMu  sync.Mutex
	closed bool
	runs   sync.WaitGroup

	mu     sync.Mutex
	active map[int64]struct{}
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithMetrics records run and stage metrics on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = rec
	}
}

// WithNotifier reports completed and failed runs through svc.
func WithNotifier(svc notifications.Service) Option {
	return func(e *Engine) {
		if svc != nil {
			e.notifier = svc
		}
	}
}

// NewEngine constructs an engine bounded by cfg.Workflow.MaxConcurrent.
func NewEngine(cfg *config.Config, store *queue.Store, analyzer Analyzer, cat Catalog, logger *slog.Logger, opts ...Option) *Engine {
	limit := int64(cfg.Workflow.MaxConcurrent)
	if limit < 1 {
		limit = 1
	}
	e := &Engine{
		store:      store,
		analyzer:   analyzer,
		catalog:    cat,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		watchDir:   cfg.Paths.WatchDir,
		archiveDir: cfg.Paths.ArchiveDir,
		notifier:   notifications.NewService(config.Notifications{}),
		sem:        semaphore.NewWeighted(limit),
		active:     make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ArchiveDir returns the configured archive directory.
func (e *Engine) ArchiveDir() string {
	return e.archiveDir
}

// InFlight reports how many runs currently hold a concurrency slot.
func (e *Engine) InFlight() int {
	return int(e.inFlight.Load())
}

// Submit processes filePath in the background and archives it on success.
// It never blocks on the concurrency bound. After Shutdown the file is left
// in place for the next daemon start.
func (e *Engine) Submit(ctx context.Context, filePath string) {
	if !e.begin() {
		e.logger.Info("engine closed; submission dropped",
			logging.String(logging.FieldEventType, "submit_rejected"),
			logging.String("source_file", filePath),
		)
		return
	}
	go func() {
		defer e.runs.Done()
		e.process(ctx, filePath, e.archiveDir)
	}()
}

// Shutdown stops accepting runs and blocks until every run already accepted
// has finished or ctx is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.runMu.Lock()
	e.closed = true
	e.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin registers a run unless the engine is closed. Callers that get true
// must call e.runs.Done.
func (e *Engine) begin() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.closed {
		return false
	}
	e.runs.Add(1)
	return true
}

// acquire takes a concurrency slot. The returned release func must be called
// exactly once.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	e.inFlight.Add(1)
	e.metrics.RunStarted()
	return func() {
		e.inFlight.Add(-1)
		e.sem.Release(1)
	}, nil
}

func (e *Engine) markActive(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[id]; ok {
		return false
	}
	e.active[id] = struct{}{}
	return true
}

func (e *Engine) clearActive(id int64) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}
