package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"draftdrop/internal/api"
	"draftdrop/internal/config"
	"draftdrop/internal/daemon"
	"draftdrop/internal/logging"
	"draftdrop/internal/queue"
	"draftdrop/internal/testsupport"
)

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	analyzer *testsupport.FakeAnalyzer
	catalog  *testsupport.FakeCatalog
	daemon   *daemon.Daemon
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	h := &harness{
		cfg:      cfg,
		store:    store,
		analyzer: &testsupport.FakeAnalyzer{Result: testsupport.SunsetAnalysis()},
		catalog:  &testsupport.FakeCatalog{ImageID: "img_123", ListingID: "prod_456"},
	}
	d, err := daemon.New(context.Background(), cfg, store, logging.NewNop(), daemon.WithCollaborators(h.analyzer, h.catalog))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	h.daemon = d
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.daemon.Stop)
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if h.cfg.Paths.APIToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Paths.APIToken)
	}
	rec := httptest.NewRecorder()
	h.daemon.Handler().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestDaemonStartStop(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	if !h.daemon.Running() {
		t.Fatal("expected daemon to report running")
	}
	if h.daemon.APIAddress() == "" {
		t.Fatal("expected api listener")
	}
	if err := h.daemon.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	h.daemon.Stop()
	if h.daemon.Running() {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceRejectedByLock(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	other, err := daemon.New(context.Background(), h.cfg, h.store, logging.NewNop(),
		daemon.WithCollaborators(h.analyzer, h.catalog))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = other.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestStartSeedsRegistryAndSettings(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoProcess(false))
	ctx := context.Background()
	done, err := h.store.CreateItem(ctx, filepath.Join(h.cfg.Paths.WatchDir, "old.png"))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	done.Status = queue.StatusCompleted
	if err := h.store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	h.start(t)

	if !h.daemon.Registry().Contains("old.png") {
		t.Fatal("expected completed filename to be seeded")
	}
	enabled, err := h.store.AutoProcessEnabled(ctx)
	if err != nil {
		t.Fatalf("AutoProcessEnabled: %v", err)
	}
	if enabled {
		t.Fatal("expected auto-process seeded from config as false")
	}
	if len(h.daemon.PreflightResults()) == 0 {
		t.Fatal("expected preflight results")
	}
}

func TestUploadRunsPipelineAndClaimsName(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoProcess(false))
	h.start(t)

	rec := h.do(t, uploadRequest(t, "design1.png", testsupport.PNGBytes()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[api.RunResult](t, rec)
	if !res.Success || res.Item == nil {
		t.Fatalf("expected success with item, got %+v", res)
	}
	if res.Item.Status != "completed" || res.Item.RemoteImageID != "img_123" || res.Item.RemoteListingID != "prod_456" {
		t.Fatalf("unexpected item %+v", res.Item)
	}
	if want := filepath.Join(h.cfg.Paths.ArchiveDir, "design1.png"); res.Item.ArchivedPath != want {
		t.Fatalf("expected archived path %s, got %s", want, res.Item.ArchivedPath)
	}
	if !h.daemon.Registry().Contains("design1.png") {
		t.Fatal("expected upload name to be claimed")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestUploadSanitizesHiddenName(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoProcess(false))
	h.start(t)

	rec := h.do(t, uploadRequest(t, ".sunset.png", testsupport.PNGBytes()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[api.RunResult](t, rec)
	if !res.Success || res.Item == nil || res.Item.Filename != "sunset.png" {
		t.Fatalf("expected item for sunset.png, got %+v", res)
	}
}

func TestUploadRejectsIneligibleAndMissingFile(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	rec := h.do(t, uploadRequest(t, "notes.txt", []byte("hi")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for txt, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	if rec := h.do(t, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", rec.Code)
	}
	if h.analyzer.Calls() != 0 {
		t.Fatalf("expected no analyzer calls, got %d", h.analyzer.Calls())
	}
}

func TestItemsEndpointsAndRetry(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoProcess(false))
	h.start(t)
	ctx := context.Background()

	path := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "design2.png")
	item, err := h.store.CreateItem(ctx, path)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	item.SetFailed("rate limited")
	if err := h.store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/items?status=error", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	list := decode[api.ItemListResponse](t, rec)
	if len(list.Items) != 1 || list.Items[0].ErrorMessage != "rate limited" {
		t.Fatalf("unexpected list %+v", list)
	}

	if rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/items?status=bogus", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
	if rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/items/999", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/items/abc", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := h.do(t, httptest.NewRequest(http.MethodPost, "/api/items/999/retry", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on retry, got %d", rec.Code)
	}

	rec = h.do(t, httptest.NewRequest(http.MethodPost, "/api/items/"+itoa(item.ID)+"/retry", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("retry: %d %s", rec.Code, rec.Body.String())
	}
	res := decode[api.RunResult](t, rec)
	if !res.Success || res.ItemID != item.ID || res.Item == nil || res.Item.Status != "completed" {
		t.Fatalf("unexpected retry result %+v", res)
	}

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/api/items/"+itoa(item.ID), nil))
	detail := decode[api.ItemDetailResponse](t, rec)
	if detail.Item.ErrorMessage != "" || len(detail.Logs) == 0 {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.ArchiveDir, "design2.png")); err != nil {
		t.Fatalf("expected archived file: %v", err)
	}
}

func TestRetryFailureReturnsResult(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoProcess(false))
	h.start(t)
	item, err := h.store.CreateItem(context.Background(), filepath.Join(h.cfg.Paths.WatchDir, "gone.png"))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	rec := h.do(t, httptest.NewRequest(http.MethodPost, "/api/items/"+itoa(item.ID)+"/retry", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	res := decode[api.RunResult](t, rec)
	if res.Success || res.ErrorKind != "filesystem" || !strings.Contains(res.Error, "not found") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSettingsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{}`))
	rec := h.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing field, got %d", rec.Code)
	}
	if got := decode[api.ErrorResponse](t, rec).Error; got != "invalid request: autoProcess is required" {
		t.Fatalf("unexpected error %q", got)
	}

	rec = h.do(t, httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"autoProcess":false}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	if decode[api.Settings](t, rec).AutoProcess {
		t.Fatal("expected auto-process off")
	}
	if rec := h.do(t, httptest.NewRequest(http.MethodDelete, "/api/settings", nil)); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStatusAndLogsEndpoints(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoProcess(false))
	h.start(t)
	if _, err := h.store.AppendLog(context.Background(), nil, "watcher", queue.OutcomeError, "watch failed"); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	status := decode[api.DaemonStatus](t, rec)
	if !status.Running || status.WatchDir != h.cfg.Paths.WatchDir || status.AutoProcess {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, ok := status.ItemCounts["pending"]; !ok {
		t.Fatalf("expected zero counts for every status, got %v", status.ItemCounts)
	}

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/api/logs?limit=5", nil))
	logs := decode[api.LogListResponse](t, rec)
	if len(logs.Entries) != 1 || logs.Entries[0].Message != "watch failed" {
		t.Fatalf("unexpected logs %+v", logs)
	}
	if rec := h.do(t, httptest.NewRequest(http.MethodGet, "/api/logs?item_id=x", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuthAndRequestID(t *testing.T) {
	h := newHarness(t, testsupport.WithAPIToken("s3cret"))
	h.start(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := h.do(t, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID on rejected request")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = h.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected echoed request id, got %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Enabled = true
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(context.Background(), cfg, store, logging.NewNop(),
		daemon.WithCollaborators(&testsupport.FakeAnalyzer{}, &testsupport.FakeCatalog{}))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "draftdrop_runs_in_flight") {
		t.Fatalf("expected metrics exposition, got %d", rec.Code)
	}
}

func TestRunStopsOnCancelAndReleasesLock(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.daemon.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !h.daemon.Running() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !h.daemon.Running() {
		t.Fatal("daemon did not start")
	}
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	next, err := daemon.New(context.Background(), h.cfg, h.store, logging.NewNop(),
		daemon.WithCollaborators(h.analyzer, h.catalog))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := next.Start(context.Background()); err != nil {
		t.Fatalf("expected lock to be free, got %v", err)
	}
	next.Stop()
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestRetryAfterStopIsUnavailable(t *testing.T) {
	h := newHarness(t, testsupport.WithAutoProcess(false))
	h.start(t)
	ctx := context.Background()

	path := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "late.png")
	item, err := h.store.CreateItem(ctx, path)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	item.SetFailed("rate limited")
	if err := h.store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	h.daemon.Stop()
	rec := h.do(t, httptest.NewRequest(http.MethodPost, "/api/items/"+itoa(item.ID)+"/retry", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after stop, got %d: %s", rec.Code, rec.Body.String())
	}
	if got, _ := h.store.GetByID(ctx, item.ID); got.Status != queue.StatusError {
		t.Fatalf("expected item untouched, got %+v", got)
	}
}
