package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"draftdrop/internal/fileutil"
	"draftdrop/internal/logging"
	"draftdrop/internal/metrics"
	"draftdrop/internal/queue"
	"draftdrop/internal/services"
	"draftdrop/internal/services/catalog"
)

// Process runs the full pipeline for filePath. When archiveDir is empty the
// source file is left in place. ctx only bounds the wait for a concurrency
// slot; the run itself is not cancelled by it.
func (e *Engine) Process(ctx context.Context, filePath, archiveDir string) Result {
	if !e.begin() {
		return Result{Err: ErrEngineClosed}
	}
	defer e.runs.Done()
	return e.process(ctx, filePath, archiveDir)
}

func (e *Engine) process(ctx context.Context, filePath, archiveDir string) Result {
	release, err := e.acquire(ctx)
	if err != nil {
		return Result{Err: err}
	}
	defer release()

	runCtx := withRunContext(context.WithoutCancel(ctx))
	if abs, err := filepath.Abs(filePath); err == nil {
		filePath = abs
	}

	item, err := e.store.CreateItem(runCtx, filePath)
	if err != nil {
		err = services.Wrap(services.ErrFileSystem, StageCreate, "insert item", "could not record item", err)
		logging.WithContext(runCtx, e.logger).Error("item creation failed",
			logging.String(logging.FieldEventType, "item_create_failed"),
			logging.String("source_file", filePath),
			logging.Error(err),
		)
		e.metrics.RunFinished(metrics.OutcomeFailed)
		return Result{Err: err}
	}
	e.markActive(item.ID)
	defer e.clearActive(item.ID)

	runCtx = services.WithItem(runCtx, item.ID, item.Filename)
	e.appendLog(runCtx, item.ID, ActionProcessingStarted, queue.OutcomeInfo,
		fmt.Sprintf("processing started: %s", item.Filename))
	logging.WithContext(runCtx, e.logger).Info("item created",
		logging.String(logging.FieldEventType, "item_created"),
		logging.String("source_file", filePath),
	)
	return e.execute(runCtx, item, filePath, archiveDir)
}

// execute runs Analyze, Upload and Create Draft against an item that is
// already in processing state, then archives the file.
func (e *Engine) execute(ctx context.Context, item *queue.Item, filePath, archiveDir string) Result {
	var (
		data     []byte
		analysis queue.Analysis
	)

	err := e.runStage(ctx, StageAnalyze, func(ctx context.Context) error {
		var err error
		data, err = os.ReadFile(filePath)
		if err != nil {
			return services.Wrap(services.ErrFileSystem, StageAnalyze, "read file", "could not read source file", err)
		}
		analysis, err = e.analyzer.Analyze(ctx, data)
		if err != nil {
			return err
		}
		item.Analysis = &analysis
		return e.persist(ctx, item, StageAnalyze)
	})
	if err != nil {
		return e.fail(ctx, item, StageAnalyze, err)
	}
	e.appendLog(ctx, item.ID, ActionAnalysisComplete, queue.OutcomeSuccess,
		fmt.Sprintf("analysis complete: %s", analysis.Title))

	err = e.runStage(ctx, StageUpload, func(ctx context.Context) error {
		imageID, err := e.catalog.Upload(ctx, data, item.Filename)
		if err != nil {
			return err
		}
		item.RemoteImageID = imageID
		return e.persist(ctx, item, StageUpload)
	})
	if err != nil {
		return e.fail(ctx, item, StageUpload, err)
	}
	e.appendLog(ctx, item.ID, ActionUploadComplete, queue.OutcomeSuccess,
		fmt.Sprintf("uploaded image %s", item.RemoteImageID))

	var listingID string
	err = e.runStage(ctx, StageDraft, func(ctx context.Context) error {
		var err error
		listingID, err = e.catalog.CreateDraft(ctx, item.RemoteImageID, draftFromAnalysis(analysis))
		return err
	})
	if err != nil {
		return e.fail(ctx, item, StageDraft, err)
	}
	// The remote draft now exists and cannot be taken back. Nothing past
	// this point routes the run to fail.
	item.RemoteListingID = listingID
	item.Status = queue.StatusCompleted
	item.ErrorMessage = ""
	e.appendLog(ctx, item.ID, ActionDraftCreated, queue.OutcomeSuccess,
		fmt.Sprintf("draft listing %s created", listingID))
	if err := e.persist(ctx, item, StageDraft); err != nil {
		e.keepListing(ctx, item, err)
	}
	return e.complete(ctx, item, filePath, archiveDir, analysis.Title)
}

// complete archives the source file and reports a finished run.
func (e *Engine) complete(ctx context.Context, item *queue.Item, filePath, archiveDir, title string) Result {
	if strings.TrimSpace(archiveDir) != "" && filePath != "" {
		e.archive(ctx, item, filePath, archiveDir)
	}

	e.metrics.RunFinished(metrics.OutcomeCompleted)
	e.notify(ctx, func(ctx context.Context) error {
		return e.notifier.NotifyDraftCreated(ctx, item.Filename, title, item.RemoteListingID)
	})
	logging.WithContext(ctx, e.logger).Info("item completed",
		logging.String(logging.FieldEventType, "item_completed"),
		logging.String("remote_image_id", item.RemoteImageID),
		logging.String("remote_listing_id", item.RemoteListingID),
		logging.String("archived_path", item.ArchivedPath),
	)
	return Result{Success: true, ItemID: item.ID}
}

// keepListing handles a failed save after the draft was created. The listing
// id is written on its own so a later retry finds it and confirms the item
// instead of creating a second draft.
func (e *Engine) keepListing(ctx context.Context, item *queue.Item, persistErr error) {
	logger := stageLogger(ctx, e.logger, StageDraft)
	e.appendLog(ctx, item.ID, ActionPersist, queue.OutcomeError, services.Message(persistErr))
	attrs := []logging.Attr{
		logging.String(logging.FieldErrorHint, "retry the item to mark it completed; no new draft will be created"),
		logging.String(logging.FieldImpact, "draft exists remotely but the item is not marked completed"),
		logging.String("remote_listing_id", item.RemoteListingID),
		logging.Error(persistErr),
	}
	if err := e.store.RecordListing(ctx, item.ID, item.RemoteListingID); err != nil {
		attrs = append(attrs, logging.String("listing_record_error", err.Error()))
	}
	logging.ErrorWithContext(logger, "failed to save drafted item", "draft_persist_failed", attrs...)
}

func (e *Engine) runStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	stageCtx := services.WithStage(ctx, stage)
	logger := logging.WithContext(stageCtx, e.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	start := time.Now()
	err := fn(stageCtx)
	elapsed := time.Since(start)
	e.metrics.StageObserved(stage, elapsed)
	if err != nil {
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", elapsed),
	)
	return nil
}

// archive moves the source file into archiveDir. The item stays completed
// when the move fails.
func (e *Engine) archive(ctx context.Context, item *queue.Item, filePath, archiveDir string) {
	ctx = services.WithStage(ctx, StageArchive)
	logger := logging.WithContext(ctx, e.logger)
	dest, err := fileutil.MoveToDir(filePath, archiveDir)
	if err != nil {
		err = services.Wrap(services.ErrFileSystem, StageArchive, "move file", "could not archive source file", err)
		e.metrics.ArchiveFailed()
		e.appendLog(ctx, item.ID, ActionArchive, queue.OutcomeError, services.Message(err))
		logging.WarnWithContext(logger, "archive failed", "archive_failed",
			logging.String(logging.FieldErrorHint, "check permissions on the archive directory"),
			logging.String(logging.FieldImpact, "draft was created; source file left in the watch directory"),
			logging.Error(err),
		)
		return
	}
	item.ArchivedPath = dest
	if err := e.store.Update(ctx, item); err != nil {
		logger.Warn("failed to record archived path",
			logging.String(logging.FieldEventType, "archive_persist_failed"),
			logging.Error(err),
		)
	}
}

func (e *Engine) persist(ctx context.Context, item *queue.Item, stage string) error {
	if err := e.store.Update(ctx, item); err != nil {
		return services.Wrap(services.ErrFileSystem, stage, "persist item", "could not save item state", err)
	}
	return nil
}

func (e *Engine) appendLog(ctx context.Context, itemID int64, action string, outcome queue.Outcome, message string) {
	if _, err := e.store.AppendLog(ctx, &itemID, action, outcome, message); err != nil {
		logging.WithContext(ctx, e.logger).Error("failed to append action log",
			logging.String(logging.FieldEventType, "action_log_failed"),
			logging.String("action", action),
			logging.Error(err),
		)
	}
}

func draftFromAnalysis(analysis queue.Analysis) catalog.Draft {
	return catalog.Draft{
		Title:       analysis.Title,
		Description: analysis.Description,
		Bullets:     append([]string(nil), analysis.Bullets...),
		Tags:        append([]string(nil), analysis.Tags...),
	}
}

// notify delivers a notification and logs delivery failures. It never
// changes the outcome of the run.
func (e *Engine) notify(ctx context.Context, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "notification failed", "notification_failed",
			logging.String(logging.FieldImpact, "operator was not alerted"),
			logging.Error(err),
		)
	}
}

// withRunContext attaches a correlation id unless the caller already set one.
func withRunContext(ctx context.Context) context.Context {
	if _, ok := services.RequestIDFromContext(ctx); ok {
		return ctx
	}
	return services.WithRequestID(ctx, uuid.NewString())
}

func stageLogger(ctx context.Context, logger *slog.Logger, stage string) *slog.Logger {
	return logging.WithContext(services.WithStage(ctx, stage), logger)
}
