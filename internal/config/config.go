package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WatchDir   string `toml:"watch_dir"`
	ArchiveDir string `toml:"archive_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Watcher contains configuration for the inbox directory watcher.
type Watcher struct {
	StabilityMS int      `toml:"stability_ms"`
	PollMS      int      `toml:"poll_ms"`
	Extensions  []string `toml:"extensions"`
	// AutoProcess seeds the persisted auto-process flag the first time the
	// store is opened. After that the flag lives in the settings table.
	AutoProcess bool `toml:"auto_process"`
}

// Workflow contains configuration for pipeline dispatch.
type Workflow struct {
	MaxConcurrent          int `toml:"max_concurrent"`
	ShutdownGraceSeconds   int `toml:"shutdown_grace_seconds"`
	StaleProcessingMinutes int `toml:"stale_processing_minutes"`
}

// Analyzer contains connection settings for the image analysis service.
type Analyzer struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxImageBytes  int64  `toml:"max_image_bytes"`
}

// Catalog contains connection settings and the listing template for the
// catalog service.
type Catalog struct {
	BaseURL         string `toml:"base_url"`
	APIToken        string `toml:"api_token"`
	ShopID          string `toml:"shop_id"`
	BlueprintID     int    `toml:"blueprint_id"`
	PrintProviderID int    `toml:"print_provider_id"`
	PriceCents      int    `toml:"price_cents"`
	VariantIDs      []int  `toml:"variant_ids"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications configures ntfy delivery of run outcomes.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifyOnSuccess       bool   `toml:"notify_on_success"`
}

// Metrics toggles the Prometheus endpoint on the daemon API.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for draftdrop.
//
// Configuration sections by subsystem:
//   - Paths: inbox, archive, state and log directories plus the API bind address
//   - Watcher: stability window, poll interval, allowed extensions
//   - Workflow: concurrency bound and shutdown behaviour
//   - Analyzer: image analysis provider
//   - Catalog: upload and draft listing service
//   - Logging: log format and level
//   - Notifications: ntfy alerts for failed (and optionally completed) runs
//   - Metrics: Prometheus exposition
type Config struct {
	Paths         Paths         `toml:"paths"`
	Watcher       Watcher       `toml:"watcher"`
	Workflow      Workflow      `toml:"workflow"`
	Analyzer      Analyzer      `toml:"analyzer"`
	Catalog       Catalog       `toml:"catalog"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv populates unset environment variables from a dotenv file. A
// missing file is not an error; variables already in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("draftdrop.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the inbox, archive, state and log directories.
// Creation is idempotent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WatchDir, c.Paths.ArchiveDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the state directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "draftdrop.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "draftdrop.lock")
}

// StabilityWindow returns how long a file must stay unchanged before it is submitted.
func (c *Config) StabilityWindow() time.Duration {
	return time.Duration(c.Watcher.StabilityMS) * time.Millisecond
}

// PollInterval returns how often pending files are sampled for stability.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watcher.PollMS) * time.Millisecond
}

// ShutdownGrace returns how long the daemon waits for in-flight runs on stop.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Workflow.ShutdownGraceSeconds) * time.Second
}

// StaleProcessingAfter returns the startup sweep threshold. Zero disables the sweep.
func (c *Config) StaleProcessingAfter() time.Duration {
	return time.Duration(c.Workflow.StaleProcessingMinutes) * time.Minute
}

// APIBaseURL returns the HTTP base URL clients use to reach the daemon.
func (c *Config) APIBaseURL() string {
	bind := strings.TrimSpace(c.Paths.APIBind)
	if bind == "" {
		bind = defaultAPIBind
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
