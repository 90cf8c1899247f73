package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"draftdrop/internal/config"
	"draftdrop/internal/dedup"
	"draftdrop/internal/logging"
	"draftdrop/internal/metrics"
	"draftdrop/internal/notifications"
	"draftdrop/internal/preflight"
	"draftdrop/internal/queue"
	"draftdrop/internal/services/analyzer"
	"draftdrop/internal/services/catalog"
	"draftdrop/internal/watcher"
	"draftdrop/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	metrics  *metrics.Recorder
	registry *dedup.Registry
	analyzer workflow.Analyzer
	catalog  workflow.Catalog
	engine   *workflow.Engine
	watcher  *watcher.Watcher
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	preflight []preflight.Result
	running   atomic.Bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithCollaborators replaces the remote analyzer and catalog clients.
func WithCollaborators(a workflow.Analyzer, c workflow.Catalog) Option {
	return func(d *Daemon) {
		d.analyzer = a
		d.catalog = c
	}
}

// New constructs a daemon with initialized dependencies. Nothing is started
// until Start or Run is called.
func New(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		registry: dedup.New(),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if cfg.Metrics.Enabled {
		d.metrics = metrics.New()
	}

	if d.analyzer == nil {
		a, err := analyzer.New(ctx, cfg.Analyzer)
		if err != nil {
			logging.WarnWithContext(d.logger, "analyzer unavailable", "collaborator_unavailable",
				logging.String(logging.FieldImpact, "every run will fail at the analyze stage"),
				logging.Error(err),
			)
			a = analyzer.Unavailable(err)
		}
		d.analyzer = a
	}
	if d.catalog == nil {
		d.catalog = catalog.NewClient(cfg.Catalog)
	}

	d.engine = workflow.NewEngine(cfg, store, d.analyzer, d.catalog, logger,
		workflow.WithMetrics(d.metrics),
		workflow.WithNotifier(notifications.NewService(cfg.Notifications)),
	)
	d.watcher = watcher.New(cfg, d.registry, d.engine, store, store, logger, watcher.WithMetrics(d.metrics))
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the lock, prepares persisted state and starts the watcher
// and the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another draftdrop daemon instance is already running")
	}

	if err := d.prepare(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	if err := d.watcher.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start watcher: %w", err)
	}
	if err := d.api.listen(); err != nil {
		d.watcher.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("draftdrop daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("watch_dir", d.cfg.Paths.WatchDir),
		logging.String("api", d.api.address()),
	)
	return nil
}

// prepare recovers stale rows, seeds the settings flag and the registry,
// then runs preflight.
func (d *Daemon) prepare(ctx context.Context) error {
	if _, err := workflow.RecoverStale(ctx, d.store, d.logger, d.cfg.StaleProcessingAfter()); err != nil {
		return fmt.Errorf("recover stale items: %w", err)
	}
	enabled, err := d.store.SeedAutoProcess(ctx, d.cfg.Watcher.AutoProcess)
	if err != nil {
		return err
	}
	claimed, err := d.store.ClaimedFilenames(ctx)
	if err != nil {
		return fmt.Errorf("seed registry: %w", err)
	}
	d.registry.Seed(claimed...)
	d.logger.Info("state restored",
		logging.String(logging.FieldEventType, "state_restored"),
		logging.Int("claimed_filenames", len(claimed)),
		logging.Bool("auto_process", enabled),
	)

	results := preflight.RunAll(ctx, d.cfg)
	for _, r := range results {
		if r.Passed {
			d.logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "runs depending on this check will fail"),
		)
	}
	d.mu.Lock()
	d.preflight = results
	d.mu.Unlock()
	return nil
}

// Run starts the daemon and blocks until ctx is done or the API server
// fails, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.api.serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		d.watcher.Stop()
		return nil
	})
	err := g.Wait()
	d.Stop()
	return err
}

// Stop stops the watcher and the API, waits up to the shutdown grace period
// for in-flight runs and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	d.watcher.Stop()
	d.api.shutdown()

	waitCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownGrace())
	defer cancel()
	if err := d.engine.Shutdown(waitCtx); err != nil {
		logging.WarnWithContext(d.logger, "shutdown grace period elapsed", "shutdown_timeout",
			logging.Int("in_flight", d.engine.InFlight()),
			logging.String(logging.FieldImpact, "interrupted items stay in processing until retried"),
		)
	}
	if closer, ok := d.analyzer.(io.Closer); ok {
		_ = closer.Close()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("draftdrop daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Running reports whether Start has succeeded and Stop has not run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Engine exposes the pipeline engine.
func (d *Daemon) Engine() *workflow.Engine {
	return d.engine
}

// Registry exposes the dedup registry shared by the watcher and uploads.
func (d *Daemon) Registry() *dedup.Registry {
	return d.registry
}

// APIAddress returns the address the API listener is bound to, or "" before Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Handler returns the API handler. Useful for in-process tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// PreflightResults returns the results of the startup preflight checks.
func (d *Daemon) PreflightResults() []preflight.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]preflight.Result(nil), d.preflight...)
}
