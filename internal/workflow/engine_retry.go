package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"draftdrop/internal/logging"
	"draftdrop/internal/metrics"
	"draftdrop/internal/queue"
	"draftdrop/internal/services"
)

// Retry re-runs the pipeline for an existing item. Previous outputs are
// discarded and no new item row is created. The dedup registry is not
// consulted.
//
// An item that holds a listing id but never reached completed had its draft
// created before the save failed. Retry confirms that draft instead of
// creating another one.
func (e *Engine) Retry(ctx context.Context, itemID int64) Result {
	if !e.begin() {
		return Result{ItemID: itemID, Err: ErrEngineClosed}
	}
	defer e.runs.Done()

	item, err := e.store.GetByID(ctx, itemID)
	if err != nil {
		return Result{ItemID: itemID, Err: services.Wrap(services.ErrFileSystem, StageRetry, "load item", "could not load item", err)}
	}
	if item == nil {
		return Result{ItemID: itemID, Err: ErrItemNotFound}
	}
	if !e.markActive(item.ID) {
		return Result{ItemID: itemID, Err: ErrItemBusy}
	}
	defer e.clearActive(item.ID)

	if item.RemoteListingID != "" && item.Status != queue.StatusCompleted {
		return e.confirmDraft(ctx, item)
	}

	path, err := e.locate(item)
	if err != nil {
		return Result{ItemID: itemID, Err: err}
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return Result{ItemID: itemID, Err: err}
	}
	defer release()

	runCtx := services.WithItem(withRunContext(context.WithoutCancel(ctx)), item.ID, item.Filename)
	logger := logging.WithContext(runCtx, e.logger)

	previous := describeOutputs(item)
	item.ResetOutputs()
	item.Status = queue.StatusPending
	item.SourcePath = path
	item.ArchivedPath = ""
	if err := e.store.Update(runCtx, item); err != nil {
		e.metrics.RunFinished(metrics.OutcomeFailed)
		return Result{ItemID: itemID, Err: services.Wrap(services.ErrFileSystem, StageRetry, "reset item", "could not reset item", err)}
	}
	e.appendLog(runCtx, item.ID, ActionRetryRequested, queue.OutcomeInfo, "retry requested"+previous)
	logger.Info("retry started",
		logging.String(logging.FieldEventType, "retry_started"),
		logging.String("source_file", path),
	)

	item.Status = queue.StatusProcessing
	if err := e.store.Update(runCtx, item); err != nil {
		return e.fail(runCtx, item, StageRetry, services.Wrap(services.ErrFileSystem, StageRetry, "persist item", "could not save item state", err))
	}
	e.appendLog(runCtx, item.ID, ActionProcessingStarted, queue.OutcomeInfo,
		fmt.Sprintf("processing started: %s", item.Filename))
	return e.execute(runCtx, item, path, e.archiveDir)
}

// confirmDraft marks an item completed whose draft already exists remotely.
// No analyzer or catalog call is made. The source file is archived only
// from the path recorded on the item.
func (e *Engine) confirmDraft(ctx context.Context, item *queue.Item) Result {
	release, err := e.acquire(ctx)
	if err != nil {
		return Result{ItemID: item.ID, Err: err}
	}
	defer release()

	runCtx := services.WithItem(withRunContext(context.WithoutCancel(ctx)), item.ID, item.Filename)
	previousStatus := item.Status
	item.Status = queue.StatusCompleted
	item.ErrorMessage = ""
	if err := e.store.Update(runCtx, item); err != nil {
		e.metrics.RunFinished(metrics.OutcomeFailed)
		return Result{ItemID: item.ID, Err: services.Wrap(services.ErrFileSystem, StageRetry, "persist item", "could not save item state", err)}
	}
	e.appendLog(runCtx, item.ID, ActionRetryRequested, queue.OutcomeInfo,
		fmt.Sprintf("retry requested: draft listing %s already exists (previous status %s), marking completed",
			item.RemoteListingID, previousStatus))
	logging.WithContext(runCtx, e.logger).Info("existing draft confirmed",
		logging.String(logging.FieldEventType, "draft_confirmed"),
		logging.String("remote_listing_id", item.RemoteListingID),
	)

	source := ""
	if regularFile(item.SourcePath) && item.ArchivedPath == "" {
		source = item.SourcePath
	}
	title := ""
	if item.Analysis != nil {
		title = item.Analysis.Title
	}
	return e.complete(runCtx, item, source, e.archiveDir, title)
}

// locate finds the item's file. A completed item that was archived is only
// looked up at its recorded archive path: a file of the same name in the
// watch directory is a newer, unrelated drop. Otherwise the watch directory
// comes first and the archive is the fallback.
func (e *Engine) locate(item *queue.Item) (string, error) {
	var candidates []string
	if item.Status == queue.StatusCompleted && item.ArchivedPath != "" {
		candidates = []string{item.ArchivedPath}
	} else {
		candidates = []string{item.SourcePath}
		if e.watchDir != "" {
			candidates = append(candidates, filepath.Join(e.watchDir, item.Filename))
		}
		candidates = append(candidates, item.ArchivedPath)
		if e.archiveDir != "" {
			candidates = append(candidates, filepath.Join(e.archiveDir, item.Filename))
		}
	}
	for _, candidate := range candidates {
		if regularFile(candidate) {
			return candidate, nil
		}
	}
	return "", services.Wrap(services.ErrFileSystem, StageRetry, "locate file",
		fmt.Sprintf("%s not found in watch or archive directory", item.Filename), nil)
}

func regularFile(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func describeOutputs(item *queue.Item) string {
	var parts []string
	if item.RemoteImageID != "" {
		parts = append(parts, "image "+item.RemoteImageID)
	}
	if item.RemoteListingID != "" {
		parts = append(parts, "listing "+item.RemoteListingID)
	}
	if item.Status != "" {
		parts = append(parts, "status "+string(item.Status))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (previous " + strings.Join(parts, ", ") + ")"
}
