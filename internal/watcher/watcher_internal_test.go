package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"draftdrop/internal/dedup"
	"draftdrop/internal/logging"
	"draftdrop/internal/testsupport"
)

type nopSubmitter struct{}

func (nopSubmitter) Submit(context.Context, string) {}

func TestCollectStableWaitsForQuiescence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	w := New(cfg, dedup.New(), nopSubmitter{}, store, store, logging.NewNop())

	clock := time.Unix(1_700_000_000, 0)
	w.now = func() time.Time { return clock }
	path := testsupport.WriteImage(t, cfg.Paths.WatchDir, "slow.png")
	w.track(path)

	if got := w.collectStable(); len(got) != 0 {
		t.Fatalf("first sample should never be stable, got %v", got)
	}
	clock = clock.Add(w.stability / 2)
	if got := w.collectStable(); len(got) != 0 {
		t.Fatalf("file reported stable too early: %v", got)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("more")); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	clock = clock.Add(w.stability / 2)
	if got := w.collectStable(); len(got) != 0 {
		t.Fatalf("growing file reported stable: %v", got)
	}
	clock = clock.Add(w.stability - time.Millisecond)
	if got := w.collectStable(); len(got) != 0 {
		t.Fatalf("file reported stable before the window elapsed: %v", got)
	}
	clock = clock.Add(time.Millisecond)
	got := w.collectStable()
	if len(got) != 1 || got[0] != path {
		t.Fatalf("expected %s to be stable, got %v", path, got)
	}
	if len(w.pending) != 0 {
		t.Fatalf("stable file should leave the pending set")
	}
}

func TestCollectStableDropsVanishedFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	w := New(cfg, dedup.New(), nopSubmitter{}, store, store, logging.NewNop())

	path := testsupport.WriteImage(t, cfg.Paths.WatchDir, "gone.png")
	w.track(path)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	w.collectStable()
	if len(w.pending) != 0 {
		t.Fatal("expected vanished file to be dropped")
	}
}

func TestTrackIgnoresIneligibleNames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	w := New(cfg, dedup.New(), nopSubmitter{}, store, store, logging.NewNop())

	for _, name := range []string{".hidden.png", "notes.txt", "archive.tar.gz", "noext"} {
		w.track(filepath.Join(cfg.Paths.WatchDir, name))
	}
	w.track(filepath.Join(cfg.Paths.WatchDir, "LOUD.JPEG"))
	if len(w.pending) != 1 {
		t.Fatalf("expected only LOUD.JPEG pending, got %v", w.pending)
	}
}

func TestReportErrorWritesUnattachedLogEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	w := New(cfg, dedup.New(), nopSubmitter{}, store, store, logging.NewNop())

	w.reportError(context.Background(), errors.New("inotify queue overflow"))

	entries, err := store.RecentLogs(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.ItemID != nil || entry.Stage != StageWatcher || entry.Outcome != "error" || entry.Message != "inotify queue overflow" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}
