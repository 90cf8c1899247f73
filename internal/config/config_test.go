package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"draftdrop/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("PRINTIFY_API_TOKEN", "pf-token")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(tempHome, "draftdrop", "inbox"); cfg.Paths.WatchDir != want {
		t.Fatalf("unexpected watch dir: got %q want %q", cfg.Paths.WatchDir, want)
	}
	if want := filepath.Join(tempHome, "draftdrop", "archive"); cfg.Paths.ArchiveDir != want {
		t.Fatalf("unexpected archive dir: got %q want %q", cfg.Paths.ArchiveDir, want)
	}
	if cfg.StabilityWindow().Milliseconds() != 2000 {
		t.Fatalf("unexpected stability window %s", cfg.StabilityWindow())
	}
	if cfg.PollInterval().Milliseconds() != 100 {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval())
	}
	if strings.Join(cfg.Watcher.Extensions, ",") != "png,jpg,jpeg" {
		t.Fatalf("unexpected extensions %v", cfg.Watcher.Extensions)
	}
	if cfg.Analyzer.APIKey != "or-key" {
		t.Fatalf("expected analyzer key from env, got %q", cfg.Analyzer.APIKey)
	}
	if cfg.Catalog.APIToken != "pf-token" {
		t.Fatalf("expected catalog token from env, got %q", cfg.Catalog.APIToken)
	}
	if cfg.Analyzer.BaseURL == "" || cfg.Analyzer.Model == "" {
		t.Fatalf("expected analyzer defaults, got %+v", cfg.Analyzer)
	}
	if cfg.Workflow.StaleProcessingMinutes != 0 {
		t.Fatalf("expected stale sweep disabled by default, got %d", cfg.Workflow.StaleProcessingMinutes)
	}
	if cfg.DatabasePath() != filepath.Join(tempHome, ".local", "share", "draftdrop", "draftdrop.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	custom := config.Default()
	custom.Paths.WatchDir = filepath.Join(dir, "in")
	custom.Paths.ArchiveDir = filepath.Join(dir, "done")
	custom.Watcher.Extensions = []string{".PNG", "webp", "png", " "}
	custom.Workflow.MaxConcurrent = 2
	custom.Analyzer.Provider = "Gemini"
	custom.Analyzer.Model = ""
	custom.Catalog.VariantIDs = []int{11, 12}

	payload, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if strings.Join(cfg.Watcher.Extensions, ",") != "png,webp" {
		t.Fatalf("expected normalized extensions, got %v", cfg.Watcher.Extensions)
	}
	if cfg.Analyzer.Provider != config.ProviderGemini {
		t.Fatalf("expected gemini provider, got %q", cfg.Analyzer.Provider)
	}
	if cfg.Analyzer.Model == "" {
		t.Fatal("expected gemini default model")
	}
	if cfg.Workflow.MaxConcurrent != 2 {
		t.Fatalf("unexpected max concurrent %d", cfg.Workflow.MaxConcurrent)
	}
	if len(cfg.Catalog.VariantIDs) != 2 {
		t.Fatalf("unexpected variants %v", cfg.Catalog.VariantIDs)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	work := t.TempDir()
	t.Chdir(work)
	t.Setenv("DRAFTDROP_CATALOG_TOKEN", "")
	if err := os.WriteFile(filepath.Join(work, ".env"), []byte("DRAFTDROP_CATALOG_SHOP_ID=shop-77\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("DRAFTDROP_CATALOG_SHOP_ID") })

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Catalog.ShopID != "shop-77" {
		t.Fatalf("expected shop id from .env, got %q", cfg.Catalog.ShopID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"same dirs", func(c *config.Config) { c.Paths.ArchiveDir = c.Paths.WatchDir }, "must differ"},
		{"zero stability", func(c *config.Config) { c.Watcher.StabilityMS = 0 }, "stability_ms"},
		{"poll above window", func(c *config.Config) { c.Watcher.PollMS = 5000 }, "poll_ms"},
		{"no concurrency", func(c *config.Config) { c.Workflow.MaxConcurrent = 0 }, "max_concurrent"},
		{"provider", func(c *config.Config) { c.Analyzer.Provider = "bogus" }, "analyzer.provider"},
		{"variant", func(c *config.Config) { c.Catalog.VariantIDs = []int{0} }, "variant_ids"},
		{"stale", func(c *config.Config) { c.Workflow.StaleProcessingMinutes = -1 }, "stale_processing_minutes"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.WatchDir = "/tmp/in"
			cfg.Paths.ArchiveDir = "/tmp/out"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateAllowsMissingCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WatchDir = "/tmp/in"
	cfg.Paths.ArchiveDir = "/tmp/out"
	cfg.Analyzer.APIKey = ""
	cfg.Catalog.APIToken = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected missing credentials to pass validation, got %v", err)
	}
}

func TestEnsureDirectoriesIsIdempotent(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(base, "in")
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for i := 0; i < 2; i++ {
		if err := cfg.EnsureDirectories(); err != nil {
			t.Fatalf("EnsureDirectories pass %d: %v", i, err)
		}
	}
	for _, dir := range []string{cfg.Paths.WatchDir, cfg.Paths.ArchiveDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Catalog.BlueprintID != 6 || cfg.Catalog.PrintProviderID != 99 {
		t.Fatalf("unexpected sample catalog template %+v", cfg.Catalog)
	}
}

func TestAPIBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.APIBind = ":8080"
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected base url %q", got)
	}
}

func TestNotificationsTopicFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DRAFTDROP_NTFY_TOPIC", "https://ntfy.example/drops")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/drops" {
		t.Fatalf("expected topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Notifications.RequestTimeoutSeconds != 10 || cfg.Notifications.NotifyOnSuccess {
		t.Fatalf("unexpected notification defaults %+v", cfg.Notifications)
	}
}
