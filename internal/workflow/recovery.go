package workflow

import (
	"context"
	"log/slog"
	"time"

	"draftdrop/internal/logging"
	"draftdrop/internal/queue"
)

// InterruptedMessage is stored on items found stuck in processing at startup.
const InterruptedMessage = "interrupted: daemon stopped during processing"

// RecoverStale moves items that have been processing for longer than after
// to error so they can be retried. It must run before the dedup registry is
// seeded. A non-positive after disables the sweep.
func RecoverStale(ctx context.Context, store *queue.Store, logger *slog.Logger, after time.Duration) ([]int64, error) {
	if after <= 0 {
		return nil, nil
	}
	ids, err := store.FailStaleProcessing(ctx, time.Now().Add(-after), InterruptedMessage)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		logging.NewComponentLogger(logger, "workflow").Warn("recovered interrupted items",
			logging.String(logging.FieldEventType, "stale_items_recovered"),
			logging.Int("count", len(ids)),
			logging.Any("item_ids", ids),
			logging.String(logging.FieldErrorHint, "retry the listed items once the cause is fixed"),
			logging.String(logging.FieldImpact, "items were moved to error"),
		)
	}
	return ids, nil
}
