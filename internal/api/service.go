package api

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"draftdrop/internal/queue"
)

const (
	defaultLogLimit = 200
	maxLogLimit     = 1000
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("item not found")

var validate = validator.New()

// Store abstracts the persistence the API needs.
type Store interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id int64) (*queue.Item, error)
	LogsForItem(ctx context.Context, itemID int64) ([]*queue.LogEntry, error)
	RecentLogs(ctx context.Context, limit int) ([]*queue.LogEntry, error)
	AutoProcessEnabled(ctx context.Context) (bool, error)
	SetAutoProcess(ctx context.Context, enabled bool) error
}

// Service exposes item, log and settings operations returning API DTOs.
type Service struct {
	store Store
}

// NewService constructs a Service around the provided store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ParseStatuses converts query values into statuses. Empty values are
// skipped and comma-separated lists are accepted.
func ParseStatuses(values []string) ([]queue.Status, error) {
	var out []queue.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := queue.ParseStatus(part)
			if err != nil {
				return nil, err
			}
			out = append(out, status)
		}
	}
	return out, nil
}

// ListItems returns items filtered by status, newest first.
func (s *Service) ListItems(ctx context.Context, statuses ...queue.Status) ([]Item, error) {
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	slices.Reverse(items)
	return FromItems(items), nil
}

// Item returns one item.
func (s *Service) Item(ctx context.Context, id int64) (Item, error) {
	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if item == nil {
		return Item{}, ErrNotFound
	}
	return FromItem(item), nil
}

// DescribeItem returns an item with its action log.
func (s *Service) DescribeItem(ctx context.Context, id int64) (ItemDetailResponse, error) {
	item, err := s.store.GetByID(ctx, id)
	if err != nil {
		return ItemDetailResponse{}, err
	}
	if item == nil {
		return ItemDetailResponse{}, ErrNotFound
	}
	entries, err := s.store.LogsForItem(ctx, id)
	if err != nil {
		return ItemDetailResponse{}, err
	}
	return ItemDetailResponse{Item: FromItem(item), Logs: FromLogEntries(entries)}, nil
}

// Logs returns action log entries. With itemID > 0 the item's entries are
// returned oldest first; otherwise the most recent entries, newest first.
func (s *Service) Logs(ctx context.Context, itemID int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	limit = min(limit, maxLogLimit)
	if itemID > 0 {
		entries, err := s.store.LogsForItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		return FromLogEntries(entries), nil
	}
	entries, err := s.store.RecentLogs(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromLogEntries(entries), nil
}

// Counts returns item counts for every status.
func (s *Service) Counts(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeItemCounts(stats), nil
}

// Settings returns the live settings.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	enabled, err := s.store.AutoProcessEnabled(ctx)
	if err != nil {
		return Settings{}, err
	}
	return Settings{AutoProcess: enabled}, nil
}

// UpdateSettings validates and applies req.
func (s *Service) UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (Settings, error) {
	if err := req.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.store.SetAutoProcess(ctx, *req.AutoProcess); err != nil {
		return Settings{}, err
	}
	return Settings{AutoProcess: *req.AutoProcess}, nil
}

// ValidationError reports a request that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", strings.Join(e.Fields, ", "))
}

// Validate validates the UpdateSettingsRequest using the validator.
func (r *UpdateSettingsRequest) Validate() error {
	return validationError(validate.Struct(r))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s is %s", lowerFirst(fe.Field()), fe.Tag()))
	}
	return &ValidationError{Fields: fields}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
