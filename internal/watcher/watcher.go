// Package watcher observes the inbox directory and hands newly stabilized
// image files to the pipeline.
//
// A file is submitted once its size and modification time have held still
// for the stability window, the persisted auto-process flag is on, and its
// name has not been claimed before in this process.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"draftdrop/internal/config"
	"draftdrop/internal/dedup"
	"draftdrop/internal/logging"
	"draftdrop/internal/metrics"
	"draftdrop/internal/queue"
)

// StageWatcher is the action log stage for watcher-level events.
const StageWatcher = "watcher"

// Submitter starts a pipeline run without blocking the caller.
type Submitter interface {
	Submit(ctx context.Context, filePath string)
}

// FlagSource reports the live auto-process flag.
type FlagSource interface {
	AutoProcessEnabled(ctx context.Context) (bool, error)
}

// EventLog records watcher errors that are not tied to an item.
type EventLog interface {
	AppendLog(ctx context.Context, itemID *int64, stage string, outcome queue.Outcome, message string) (*queue.LogEntry, error)
}

type candidate struct {
	size       int64
	modTime    time.Time
	lastChange time.Time
}

// Watcher tracks candidate files in one directory.
type Watcher struct {
	dir        string
	extensions map[string]struct{}
	stability  time.Duration
	poll       time.Duration

	registry *dedup.Registry
	submit   Submitter
	flags    FlagSource
	events   EventLog
	logger   *slog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*candidate
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional Watcher behavior.
type Option func(*Watcher)

// WithMetrics records watcher decisions on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(w *Watcher) {
		w.metrics = rec
	}
}

// New builds a watcher for cfg.Paths.WatchDir. The registry is owned by the
// caller so it can be seeded before Start and shared with manual uploads.
func New(cfg *config.Config, registry *dedup.Registry, submit Submitter, flags FlagSource, events EventLog, logger *slog.Logger, opts ...Option) *Watcher {
	exts := make(map[string]struct{}, len(cfg.Watcher.Extensions))
	for _, ext := range cfg.Watcher.Extensions {
		exts[normalizeExt(ext)] = struct{}{}
	}
	w := &Watcher{
		dir:        cfg.Paths.WatchDir,
		extensions: exts,
		stability:  cfg.StabilityWindow(),
		poll:       cfg.PollInterval(),
		registry:   registry,
		submit:     submit,
		flags:      flags,
		events:     events,
		logger:     logging.NewComponentLogger(logger, "watcher"),
		now:        time.Now,
		pending:    make(map[string]*candidate),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Eligible reports whether name is a visible file with an allowed extension.
// Extensions are compared case-insensitively and without the leading dot.
func Eligible(name string, extensions []string) bool {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[normalizeExt(ext)] = struct{}{}
	}
	return eligible(name, allowed)
}

func eligible(name string, allowed map[string]struct{}) bool {
	name = filepath.Base(name)
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	ext := normalizeExt(filepath.Ext(name))
	if ext == "" {
		return false
	}
	_, ok := allowed[ext]
	return ok
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Start registers the directory watch, queues every file already present and
// begins the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.scanExisting()

	w.wg.Add(1)
	go w.loop(runCtx, fsw)

	w.logger.Info("watching directory",
		logging.String(logging.FieldEventType, "watcher_started"),
		logging.String("dir", w.dir),
		logging.Duration("stability", w.stability),
		logging.Duration("poll", w.poll),
	)
	return nil
}

// Stop ends the event loop. Runs already submitted are not affected.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

// scanExisting queues files that were dropped while the daemon was down.
// Caller holds w.mu.
func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("initial scan failed",
			logging.String(logging.FieldEventType, "watcher_scan_failed"),
			logging.Error(err),
		)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.trackLocked(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.reportError(ctx, err)
		case <-ticker.C:
			for _, path := range w.collectStable() {
				w.evaluate(ctx, path)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.untrack(event.Name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		w.track(event.Name)
	}
}

func (w *Watcher) track(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trackLocked(path)
}

func (w *Watcher) trackLocked(path string) {
	if !eligible(path, w.extensions) {
		if !strings.HasPrefix(filepath.Base(path), ".") {
			w.metrics.WatcherDecision(metrics.DecisionIneligible)
		}
		return
	}
	if _, ok := w.pending[path]; ok {
		return
	}
	w.pending[path] = &candidate{lastChange: w.now()}
}

func (w *Watcher) untrack(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

// collectStable samples every pending file and returns those that have not
// changed for the stability window. Returned paths are no longer pending.
func (w *Watcher) collectStable() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var stable []string
	for path, c := range w.pending {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			delete(w.pending, path)
			continue
		}
		if info.Size() != c.size || !info.ModTime().Equal(c.modTime) {
			c.size = info.Size()
			c.modTime = info.ModTime()
			c.lastChange = now
			continue
		}
		if now.Sub(c.lastChange) >= w.stability {
			delete(w.pending, path)
			stable = append(stable, path)
		}
	}
	return stable
}

// evaluate applies the live flag and the dedup claim to a stable file.
func (w *Watcher) evaluate(ctx context.Context, path string) {
	name := filepath.Base(path)
	logger := w.logger.With(logging.String(logging.FieldFilename, name))

	enabled, err := w.flags.AutoProcessEnabled(ctx)
	if err != nil {
		logger.Warn("could not read auto-process flag; leaving file",
			logging.String(logging.FieldEventType, "watcher_flag_unavailable"),
			logging.Error(err),
		)
		return
	}
	if !enabled {
		w.metrics.WatcherDecision(metrics.DecisionDisabled)
		logger.Info("auto-process disabled; leaving file",
			logging.String(logging.FieldEventType, "watcher_skip_disabled"),
		)
		return
	}
	if !w.registry.Claim(name) {
		w.metrics.WatcherDecision(metrics.DecisionDuplicate)
		logger.Debug("already claimed; skipping",
			logging.String(logging.FieldEventType, "watcher_skip_duplicate"),
		)
		return
	}
	w.metrics.WatcherDecision(metrics.DecisionSubmitted)
	logger.Info("file stable; submitting",
		logging.String(logging.FieldEventType, "watcher_submit"),
		logging.String("path", path),
	)
	w.submit.Submit(ctx, path)
}

func (w *Watcher) reportError(ctx context.Context, watchErr error) {
	logging.ErrorWithContext(w.logger, "file system watch error", "watcher_error",
		logging.String(logging.FieldErrorHint, "check that the watch directory still exists"),
		logging.Error(watchErr),
	)
	if w.events == nil {
		return
	}
	if _, err := w.events.AppendLog(ctx, nil, StageWatcher, queue.OutcomeError, watchErr.Error()); err != nil {
		w.logger.Error("failed to record watcher error", logging.Error(err))
	}
}
