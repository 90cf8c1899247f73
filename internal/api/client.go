package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAPIUnavailable reports that no daemon answered on the API address.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api returned status %d", e.StatusCode)
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient returns a client for bind (host:port or a full URL). No
// timeout is set: upload and retry block until the run finishes.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{base: base, token: strings.TrimSpace(token), http: &http.Client{}}, nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, "", &out)
	return out, err
}

// ListItems fetches items, optionally filtered by status.
func (c *Client) ListItems(ctx context.Context, statuses ...string) ([]Item, error) {
	values := url.Values{}
	for _, s := range statuses {
		if strings.TrimSpace(s) != "" {
			values.Add("status", s)
		}
	}
	var out ItemListResponse
	if err := c.do(ctx, http.MethodGet, "/api/items", values, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// DescribeItem fetches one item with its log.
func (c *Client) DescribeItem(ctx context.Context, id int64) (ItemDetailResponse, error) {
	var out ItemDetailResponse
	err := c.do(ctx, http.MethodGet, "/api/items/"+strconv.FormatInt(id, 10), nil, nil, "", &out)
	return out, err
}

// RetryItem re-runs an item and waits for the result.
func (c *Client) RetryItem(ctx context.Context, id int64) (RunResult, error) {
	var out RunResult
	err := c.do(ctx, http.MethodPost, "/api/items/"+strconv.FormatInt(id, 10)+"/retry", nil, nil, "", &out)
	return out, err
}

// Logs fetches action log entries.
func (c *Client) Logs(ctx context.Context, itemID int64, limit int) ([]LogEntry, error) {
	values := url.Values{}
	if itemID > 0 {
		values.Set("item_id", strconv.FormatInt(itemID, 10))
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out LogListResponse
	if err := c.do(ctx, http.MethodGet, "/api/logs", values, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Settings fetches the live settings.
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var out Settings
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, nil, "", &out)
	return out, err
}

// SetAutoProcess updates the auto-process flag.
func (c *Client) SetAutoProcess(ctx context.Context, enabled bool) (Settings, error) {
	body, err := json.Marshal(UpdateSettingsRequest{AutoProcess: &enabled})
	if err != nil {
		return Settings{}, err
	}
	var out Settings
	err = c.do(ctx, http.MethodPut, "/api/settings", nil, bytes.NewReader(body), "application/json", &out)
	return out, err
}

// UploadFile sends a local file to the daemon and waits for the run.
func (c *Client) UploadFile(ctx context.Context, path string) (RunResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return RunResult{}, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return RunResult{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return RunResult{}, err
	}
	if err := writer.Close(); err != nil {
		return RunResult{}, err
	}

	var out RunResult
	err = c.do(ctx, http.MethodPost, "/api/upload", nil, &buf, writer.FormDataContentType(), &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return &StatusError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsAPIUnavailable reports whether err means the daemon is not reachable.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
