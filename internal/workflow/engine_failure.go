package workflow

import (
	"context"
	"errors"
	"strings"

	"draftdrop/internal/logging"
	"draftdrop/internal/metrics"
	"draftdrop/internal/queue"
	"draftdrop/internal/services"
)

// fail records a stage failure on the item and in the action log. The
// returned error always carries one of the services markers.
func (e *Engine) fail(ctx context.Context, item *queue.Item, stage string, stageErr error) Result {
	err := classifyStageError(stage, stageErr)
	message := strings.TrimSpace(services.Message(err))
	if message == "" {
		message = stage + " failed"
	}
	item.SetFailed(message)

	logger := stageLogger(ctx, e.logger, stage)
	kind := services.ErrorKind(err)
	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, kind),
		logging.String(logging.FieldErrorHint, errorHint(kind)),
		logging.String("resolved_status", string(queue.StatusError)),
		logging.String("error_message", message),
		logging.Error(err),
	)

	if updateErr := e.store.Update(ctx, item); updateErr != nil {
		logger.Error("failed to persist stage failure",
			logging.String(logging.FieldEventType, "failure_persist_failed"),
			logging.Error(updateErr),
		)
	}
	e.appendLog(ctx, item.ID, ActionError, queue.OutcomeError, message)
	e.metrics.StageFailed(stage, kind)
	e.metrics.RunFinished(metrics.OutcomeFailed)
	e.notify(ctx, func(ctx context.Context) error {
		return e.notifier.NotifyRunFailed(ctx, item.Filename, stage, message)
	})
	return Result{ItemID: item.ID, Err: err}
}

var stageMarkers = map[string]error{
	StageAnalyze: services.ErrAnalysis,
	StageUpload:  services.ErrUpload,
	StageDraft:   services.ErrDraft,
}

// classifyStageError tags errors from collaborators that did not use the
// taxonomy with the marker for the stage they came from.
func classifyStageError(stage string, err error) error {
	if err == nil {
		err = errors.New(stage + " failed without error detail")
	}
	if services.ErrorKind(err) != "unknown" {
		return err
	}
	marker, ok := stageMarkers[stage]
	if !ok {
		marker = services.ErrFileSystem
	}
	return services.Wrap(marker, stage, "", "", err)
}

func errorHint(kind string) string {
	switch kind {
	case "configuration":
		return "set the missing credential in config.toml or the environment, then retry the item"
	case "analysis":
		return "check analyzer availability and quota, then retry the item"
	case "upload":
		return "check catalog availability and the image size, then retry the item"
	case "draft":
		return "check the catalog shop, blueprint and variant settings, then retry the item"
	case "filesystem":
		return "check that the file still exists and the directories are writable"
	default:
		return "check logs for details"
	}
}
