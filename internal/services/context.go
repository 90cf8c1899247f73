package services

import "context"

type (
	itemKey      struct{}
	stageKey     struct{}
	requestIDKey struct{}
)

// itemRef identifies the draft run a context belongs to.
type itemRef struct {
	id       int64
	filename string
}

// WithItem annotates ctx with the item being processed.
func WithItem(ctx context.Context, id int64, filename string) context.Context {
	return context.WithValue(ctx, itemKey{}, itemRef{id: id, filename: filename})
}

// ItemIDFromContext returns the item identifier set by WithItem.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	ref, ok := ctx.Value(itemKey{}).(itemRef)
	if !ok || ref.id == 0 {
		return 0, false
	}
	return ref.id, true
}

// FilenameFromContext returns the source filename set by WithItem.
func FilenameFromContext(ctx context.Context) (string, bool) {
	ref, ok := ctx.Value(itemKey{}).(itemRef)
	if !ok || ref.filename == "" {
		return "", false
	}
	return ref.filename, true
}

// WithStage annotates ctx with the pipeline stage name. Blank names are ignored.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey{}, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageKey{}).(string)
	return stage, ok && stage != ""
}

// WithRequestID attaches the API request or run correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}
