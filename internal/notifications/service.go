package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"draftdrop/internal/config"
)

const userAgent = "draftdrop"

// Service defines the notification surface used by the pipeline engine.
type Service interface {
	NotifyDraftCreated(ctx context.Context, filename, title, listingID string) error
	NotifyRunFailed(ctx context.Context, filename, stage, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.NotifyOnSuccess,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
}

func (n *ntfyService) NotifyDraftCreated(ctx context.Context, filename, title, listingID string) error {
	if !n.onSuccess {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = filename
	}
	return n.send(ctx, payload{
		title:   "draftdrop - Draft Created",
		message: fmt.Sprintf("📝 %s\nDraft %s from %s", title, listingID, filename),
		tags:    []string{"draftdrop", "draft", "completed"},
	})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, filename, stage, message string) error {
	var builder strings.Builder
	builder.WriteString("❌ ")
	builder.WriteString(strings.TrimSpace(filename))
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" failed at ")
		builder.WriteString(stage)
	} else {
		builder.WriteString(" failed")
	}
	builder.WriteString(": ")
	if message = strings.TrimSpace(message); message != "" {
		builder.WriteString(message)
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "draftdrop - Error",
		message:  builder.String(),
		tags:     []string{"draftdrop", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "draftdrop - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"draftdrop", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDraftCreated(context.Context, string, string, string) error { return nil }
func (noopService) NotifyRunFailed(context.Context, string, string, string) error    { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
