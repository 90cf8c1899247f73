package testsupport

import (
	"path/filepath"
	"testing"

	"draftdrop/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Timing is shortened so watcher tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchDir = filepath.Join(base, "inbox")
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Watcher.StabilityMS = 200
	cfgVal.Watcher.PollMS = 20
	cfgVal.Analyzer.APIKey = "test-analyzer-key"
	cfgVal.Catalog.APIToken = "test-catalog-token"
	cfgVal.Catalog.ShopID = "shop-1"
	cfgVal.Catalog.BlueprintID = 6
	cfgVal.Catalog.PrintProviderID = 99
	cfgVal.Metrics.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAutoProcess sets the initial auto-process flag.
func WithAutoProcess(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Watcher.AutoProcess = enabled
	}
}

// WithMaxConcurrent overrides the pipeline concurrency bound.
func WithMaxConcurrent(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxConcurrent = n
	}
}

// WithAPIToken sets the daemon API bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
