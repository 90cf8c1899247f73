package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"draftdrop/internal/config"
	"draftdrop/internal/logging"
	"draftdrop/internal/queue"
	"draftdrop/internal/services"
	"draftdrop/internal/testsupport"
	"draftdrop/internal/workflow"
)

type harness struct {
	cfg      *config.Config
	store    *queue.Store
	analyzer *testsupport.FakeAnalyzer
	catalog  *testsupport.FakeCatalog
	engine   *workflow.Engine
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
	h.engine = workflow.NewEngine(cfg, store, h.analyzer, h.catalog, logging.NewNop())
	return h
}

func (h *harness) item(t *testing.T, id int64) *queue.Item {
	t.Helper()
	item, err := h.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if item == nil {
		t.Fatalf("item %d missing", id)
	}
	return item
}

func (h *harness) actions(t *testing.T, id int64) []string {
	t.Helper()
	entries, err := h.store.LogsForItem(context.Background(), id)
	if err != nil {
		t.Fatalf("LogsForItem: %v", err)
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Stage+"/"+string(entry.Outcome))
	}
	return out
}

func countOutcome(actions []string, outcome string) int {
	n := 0
	for _, a := range actions {
		if strings.HasSuffix(a, "/"+outcome) {
			n++
		}
	}
	return n
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestProcessSuccessCompletesAndArchives(t *testing.T) {
	h := newHarness(t)
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "design1.png")

	res := h.engine.Process(context.Background(), src, h.cfg.Paths.ArchiveDir)
	if !res.Success || res.Err != nil {
		t.Fatalf("expected success, got %+v", res)
	}

	item := h.item(t, res.ItemID)
	if item.Status != queue.StatusCompleted {
		t.Fatalf("expected completed, got %s", item.Status)
	}
	if item.RemoteImageID != "img_123" || item.RemoteListingID != "prod_456" {
		t.Fatalf("unexpected handles %q/%q", item.RemoteImageID, item.RemoteListingID)
	}
	if item.Analysis == nil || item.Analysis.Title != "Sunset Tee" || len(item.Analysis.Bullets) != 5 || len(item.Analysis.Tags) != 10 {
		t.Fatalf("unexpected analysis %+v", item.Analysis)
	}
	if item.ErrorMessage != "" {
		t.Fatalf("expected empty error message, got %q", item.ErrorMessage)
	}
	archived := filepath.Join(h.cfg.Paths.ArchiveDir, "design1.png")
	if item.ArchivedPath != archived {
		t.Fatalf("expected archived path %s, got %s", archived, item.ArchivedPath)
	}
	if fileExists(src) || !fileExists(archived) {
		t.Fatalf("expected file moved to archive")
	}

	want := []string{
		"processing_started/info",
		"analysis_complete/success",
		"upload_complete/success",
		"draft_created/success",
	}
	if got := h.actions(t, res.ItemID); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected action log %v", got)
	}

	drafts := h.catalog.Drafts()
	if len(drafts) != 1 {
		t.Fatalf("expected one draft, got %d", len(drafts))
	}
	wantDesc := "A warm sunset over a calm sea.\n• Soft cotton\n• Vivid print\n• Unisex fit\n• Machine washable\n• Gift ready"
	if drafts[0].Description != "A warm sunset over a calm sea." || len(drafts[0].Bullets) != 5 {
		t.Fatalf("unexpected draft content %+v", drafts[0])
	}
	if got := drafts[0].ListingDescription(); got != wantDesc {
		t.Fatalf("unexpected listing description %q", got)
	}
	if drafts[0].Title != "Sunset Tee" || len(drafts[0].Tags) != 10 {
		t.Fatalf("unexpected draft %+v", drafts[0])
	}
	if uploads := h.catalog.Uploads(); len(uploads) != 1 || uploads[0] != "design1.png" {
		t.Fatalf("unexpected uploads %v", uploads)
	}
}

func TestProcessWithoutArchiveDirLeavesFile(t *testing.T) {
	h := newHarness(t)
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "keep.png")

	res := h.engine.Process(context.Background(), src, "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !fileExists(src) {
		t.Fatal("expected file to stay in place")
	}
	if item := h.item(t, res.ItemID); item.ArchivedPath != "" {
		t.Fatalf("expected no archived path, got %q", item.ArchivedPath)
	}
}

func TestProcessAnalyzerFailureStopsPipeline(t *testing.T) {
	h := newHarness(t)
	h.analyzer.Err = errors.New("rate limited")
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "design2.png")

	res := h.engine.Process(context.Background(), src, h.cfg.Paths.ArchiveDir)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, services.ErrAnalysis) {
		t.Fatalf("expected analysis error, got %v", res.Err)
	}

	item := h.item(t, res.ItemID)
	if item.Status != queue.StatusError {
		t.Fatalf("expected error status, got %s", item.Status)
	}
	if item.ErrorMessage != "rate limited" {
		t.Fatalf("expected message 'rate limited', got %q", item.ErrorMessage)
	}
	actions := h.actions(t, res.ItemID)
	if countOutcome(actions, "error") != 1 {
		t.Fatalf("expected exactly one error entry, got %v", actions)
	}
	if actions[len(actions)-1] != "error/error" {
		t.Fatalf("expected trailing error/error entry, got %v", actions)
	}
	if !fileExists(src) {
		t.Fatal("expected file not moved")
	}
	if len(h.catalog.Uploads()) != 0 || len(h.catalog.Drafts()) != 0 {
		t.Fatal("expected no catalog calls after analyzer failure")
	}
}

func TestProcessUploadFailureSkipsDraft(t *testing.T) {
	h := newHarness(t)
	h.catalog.UploadErr = errors.New("image too large")
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "big.png")

	res := h.engine.Process(context.Background(), src, h.cfg.Paths.ArchiveDir)
	if res.Success || !errors.Is(res.Err, services.ErrUpload) {
		t.Fatalf("expected upload error, got %+v", res)
	}
	if len(h.catalog.Drafts()) != 0 {
		t.Fatal("expected no draft call after upload failure")
	}
	item := h.item(t, res.ItemID)
	if item.Analysis == nil {
		t.Fatal("expected analysis to be persisted before the failure")
	}
	if item.RemoteImageID != "" || item.ErrorMessage != "image too large" {
		t.Fatalf("unexpected item state %+v", item)
	}
	want := "processing_started/info,analysis_complete/success,error/error"
	if got := strings.Join(h.actions(t, res.ItemID), ","); got != want {
		t.Fatalf("unexpected action log %s", got)
	}
}

func TestProcessDraftFailureKeepsImageHandle(t *testing.T) {
	h := newHarness(t)
	h.catalog.DraftErr = services.Wrap(services.ErrDraft, "draft", "create product", "blueprint not found", nil)
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "d.png")

	res := h.engine.Process(context.Background(), src, h.cfg.Paths.ArchiveDir)
	if res.Success || !errors.Is(res.Err, services.ErrDraft) {
		t.Fatalf("expected draft error, got %+v", res)
	}
	item := h.item(t, res.ItemID)
	if item.RemoteImageID != "img_123" || item.RemoteListingID != "" {
		t.Fatalf("unexpected handles %q/%q", item.RemoteImageID, item.RemoteListingID)
	}
	if item.ErrorMessage != "blueprint not found" {
		t.Fatalf("unexpected message %q", item.ErrorMessage)
	}
	if !fileExists(src) {
		t.Fatal("expected file not moved")
	}
}

func TestProcessConfigurationErrorIsClassified(t *testing.T) {
	h := newHarness(t)
	h.analyzer.Err = services.Wrap(services.ErrConfiguration, "analyze", "init", "openrouter api key not configured", nil)
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "c.png")

	res := h.engine.Process(context.Background(), src, h.cfg.Paths.ArchiveDir)
	if !errors.Is(res.Err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", res.Err)
	}
	if kind := services.ErrorKind(res.Err); kind != "configuration" {
		t.Fatalf("unexpected kind %q", kind)
	}
	if msg := h.item(t, res.ItemID).ErrorMessage; msg != "openrouter api key not configured" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestProcessMissingFileIsFileSystemError(t *testing.T) {
	h := newHarness(t)
	res := h.engine.Process(context.Background(), filepath.Join(h.cfg.Paths.WatchDir, "gone.png"), h.cfg.Paths.ArchiveDir)
	if res.Success || !errors.Is(res.Err, services.ErrFileSystem) {
		t.Fatalf("expected file system error, got %+v", res)
	}
	if h.analyzer.Calls() != 0 {
		t.Fatal("expected analyzer not to be called")
	}
	if item := h.item(t, res.ItemID); item.Status != queue.StatusError {
		t.Fatalf("expected error status, got %s", item.Status)
	}
}

func TestProcessArchiveFailureKeepsCompleted(t *testing.T) {
	h := newHarness(t)
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "a.png")
	blocked := filepath.Join(testsupport.BaseDir(h.cfg), "not-a-dir")
	testsupport.WriteBytes(t, blocked, []byte("x"))

	res := h.engine.Process(context.Background(), src, blocked)
	if !res.Success {
		t.Fatalf("expected success despite archive failure, got %+v", res)
	}
	item := h.item(t, res.ItemID)
	if item.Status != queue.StatusCompleted || item.ArchivedPath != "" {
		t.Fatalf("unexpected item state %+v", item)
	}
	actions := h.actions(t, res.ItemID)
	if actions[len(actions)-1] != "archive/error" {
		t.Fatalf("expected archive/error entry, got %v", actions)
	}
	if !fileExists(src) {
		t.Fatal("expected source to remain after failed move")
	}
}

func TestRetryCompletedItemOverwritesOutputs(t *testing.T) {
	h := newHarness(t)
	h.catalog.ImageID, h.catalog.ListingID = "", ""
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "again.png")

	first := h.engine.Process(context.Background(), src, h.cfg.Paths.ArchiveDir)
	if !first.Success {
		t.Fatalf("first run failed: %v", first.Err)
	}
	h.analyzer.Result.Title = "Sunrise Tee"

	second := h.engine.Retry(context.Background(), first.ItemID)
	if !second.Success || second.ItemID != first.ItemID {
		t.Fatalf("unexpected retry result %+v", second)
	}
	item := h.item(t, first.ItemID)
	if item.RemoteImageID != "img_2" || item.RemoteListingID != "prod_2" {
		t.Fatalf("expected overwritten handles, got %q/%q", item.RemoteImageID, item.RemoteListingID)
	}
	if item.Analysis.Title != "Sunrise Tee" {
		t.Fatalf("expected overwritten analysis, got %q", item.Analysis.Title)
	}
	if item.ArchivedPath != filepath.Join(h.cfg.Paths.ArchiveDir, "again.png") {
		t.Fatalf("unexpected archived path %q", item.ArchivedPath)
	}
	items, err := h.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected a single item row, got %d", len(items))
	}
	actions := h.actions(t, first.ItemID)
	if !strings.Contains(strings.Join(actions, ","), "draft_created/success,retry_requested/info,processing_started/info") {
		t.Fatalf("unexpected action log %v", actions)
	}
}

func TestRetryFailedItemFromWatchDir(t *testing.T) {
	h := newHarness(t)
	h.analyzer.Err = errors.New("rate limited")
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "flaky.png")
	first := h.engine.Process(context.Background(), src, h.cfg.Paths.ArchiveDir)
	if first.Success {
		t.Fatal("expected first run to fail")
	}

	h.analyzer.Err = nil
	second := h.engine.Retry(context.Background(), first.ItemID)
	if !second.Success {
		t.Fatalf("retry failed: %v", second.Err)
	}
	item := h.item(t, first.ItemID)
	if item.Status != queue.StatusCompleted || item.ErrorMessage != "" {
		t.Fatalf("unexpected item state %+v", item)
	}
	if fileExists(src) {
		t.Fatal("expected file archived after successful retry")
	}
}

func TestRetryMissingFileLeavesItemUntouched(t *testing.T) {
	h := newHarness(t)
	h.analyzer.Err = errors.New("rate limited")
	src := testsupport.WriteImage(t, h.cfg.Paths.WatchDir, "lost.png")
	first := h.engine.Process(context.Background(), src, h.cfg.Paths.ArchiveDir)
	before := h.item(t, first.ItemID)
	if err := os.Remove(src); err != nil {
		t.Fatalf("remove: %v", err)
	}

	res := h.engine.Retry(context.Background(), first.ItemID)
	if res.Success || !errors.Is(res.Err, services.ErrFileSystem) {
		t.Fatalf("expected file system error, got %+v", res)
	}
	after := h.item(t, first.ItemID)
	if after.Status != queue.StatusError || after.ErrorMessage != "rate limited" || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("expected item untouched, got %+v", after)
	}
}

func TestRetryUnknownItem(t *testing.T) {
	h := newHarness(t)
	res := h.engine.Retry(context.Background(), 999)
	if !errors.Is(res.Err, workflow.ErrItemNotFound) {
		t.Fatalf("expected not found, got %v", res.Err)
	}
}

func TestSubmitRespectsConcurrencyBound(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxConcurrent(2))
	h.analyzer.Gate = make(chan struct{})
	for i := range 5 {
		name := filepath.Join(h.cfg.Paths.WatchDir, "bulk"+string(rune('a'+i))+".png")
		testsupport.WriteBytes(t, name, testsupport.PNGBytes())
		h.engine.Submit(context.Background(), name)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.analyzer.Active() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for runs to start, active=%d", h.analyzer.Active())
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := h.engine.InFlight(); got != 2 {
		t.Fatalf("expected 2 runs in flight, got %d", got)
	}
	close(h.analyzer.Gate)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.engine.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if peak := h.analyzer.Peak(); peak != 2 {
		t.Fatalf("expected peak concurrency 2, got %d", peak)
	}
	stats, err := h.store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusCompleted] != 5 {
		t.Fatalf("expected 5 completed items, got %v", stats)
	}
}

func TestRecoverStaleMovesProcessingToError(t *testing.T) {
	h := newHarness(t)
	item, err := h.store.CreateItem(context.Background(), filepath.Join(h.cfg.Paths.WatchDir, "stuck.png"))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	ids, err := workflow.RecoverStale(context.Background(), h.store, logging.NewNop(), 0)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected disabled sweep to do nothing, got %v %v", ids, err)
	}

	time.Sleep(20 * time.Millisecond)
	ids, err = workflow.RecoverStale(context.Background(), h.store, logging.NewNop(), time.Millisecond)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}
	if len(ids) != 1 || ids[0] != item.ID {
		t.Fatalf("unexpected recovered ids %v", ids)
	}
	got := h.item(t, item.ID)
	if got.Status != queue.StatusError || got.ErrorMessage != workflow.InterruptedMessage {
		t.Fatalf("unexpected item state %+v", got)
	}
}
