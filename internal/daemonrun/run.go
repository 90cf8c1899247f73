// Package daemonrun is the process entry point shared by draftdropd and
// "draftdrop run": it owns signals, the logger, the store and the pid file,
// and hands the rest to the daemon package.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"draftdrop/internal/config"
	"draftdrop/internal/daemon"
	"draftdrop/internal/logging"
	"draftdrop/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the draftdrop daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    logFilePath(cfg),
		Color:       logging.StderrIsTerminal(),
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	sessionID := uuid.NewString()
	logger = logger.With(logging.String("session_id", sessionID))

	logConfigSnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "draftdrop.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open item store", logging.Error(err))
		return err
	}
	defer store.Close()

	d, err := daemon.New(signalCtx, cfg, store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Run(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon stopped with error", "daemon_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, api bind address and database access"),
		)
		return err
	}
	logger.Info("draftdrop daemon shut down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logFilePath(cfg *config.Config) string {
	if cfg.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(cfg.Paths.LogDir, "draftdrop.log")
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("watch_dir", cfg.Paths.WatchDir),
		logging.String("archive_dir", cfg.Paths.ArchiveDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_set", cfg.Paths.APIToken != ""),
		logging.Int("max_concurrent", cfg.Workflow.MaxConcurrent),
		logging.Duration("stability", cfg.StabilityWindow()),
		logging.String("analyzer_provider", cfg.Analyzer.Provider),
		logging.Bool("analyzer_key_present", cfg.Analyzer.APIKey != ""),
		logging.Bool("catalog_token_present", cfg.Catalog.APIToken != ""),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
	)
}
