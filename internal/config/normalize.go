package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWatcher()
	c.normalizeWorkflow()
	c.normalizeAnalyzer()
	c.normalizeCatalog()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = lookupEnv("DRAFTDROP_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeWatcher() {
	if len(c.Watcher.Extensions) == 0 {
		c.Watcher.Extensions = append([]string(nil), defaultExtensions...)
		return
	}
	exts := make([]string, 0, len(c.Watcher.Extensions))
	seen := make(map[string]struct{}, len(c.Watcher.Extensions))
	for _, ext := range c.Watcher.Extensions {
		normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	c.Watcher.Extensions = exts
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ShutdownGraceSeconds <= 0 {
		c.Workflow.ShutdownGraceSeconds = defaultShutdownGraceSeconds
	}
}

func (c *Config) normalizeAnalyzer() {
	c.Analyzer.Provider = strings.ToLower(strings.TrimSpace(c.Analyzer.Provider))
	if c.Analyzer.Provider == "" {
		c.Analyzer.Provider = defaultAnalyzerProvider
	}
	c.Analyzer.BaseURL = strings.TrimSpace(c.Analyzer.BaseURL)
	c.Analyzer.Model = strings.TrimSpace(c.Analyzer.Model)
	c.Analyzer.APIKey = strings.TrimSpace(c.Analyzer.APIKey)
	switch c.Analyzer.Provider {
	case ProviderGemini:
		if c.Analyzer.Model == "" {
			c.Analyzer.Model = defaultGeminiModel
		}
		if c.Analyzer.APIKey == "" {
			c.Analyzer.APIKey = lookupEnv("DRAFTDROP_ANALYZER_API_KEY", "GEMINI_API_KEY")
		}
	default:
		if c.Analyzer.BaseURL == "" {
			c.Analyzer.BaseURL = defaultOpenRouterBaseURL
		}
		if c.Analyzer.Model == "" {
			c.Analyzer.Model = defaultOpenRouterModel
		}
		if c.Analyzer.APIKey == "" {
			c.Analyzer.APIKey = lookupEnv("DRAFTDROP_ANALYZER_API_KEY", "OPENROUTER_API_KEY")
		}
	}
	c.Analyzer.Referer = strings.TrimSpace(c.Analyzer.Referer)
	c.Analyzer.Title = strings.TrimSpace(c.Analyzer.Title)
	if c.Analyzer.Title == "" {
		c.Analyzer.Title = defaultAnalyzerTitle
	}
	if c.Analyzer.TimeoutSeconds <= 0 {
		c.Analyzer.TimeoutSeconds = defaultAnalyzerTimeoutSeconds
	}
	if c.Analyzer.MaxImageBytes <= 0 {
		c.Analyzer.MaxImageBytes = defaultAnalyzerMaxImageBytes
	}
}

func (c *Config) normalizeCatalog() {
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}
	c.Catalog.APIToken = strings.TrimSpace(c.Catalog.APIToken)
	if c.Catalog.APIToken == "" {
		c.Catalog.APIToken = lookupEnv("DRAFTDROP_CATALOG_TOKEN", "PRINTIFY_API_TOKEN")
	}
	c.Catalog.ShopID = strings.TrimSpace(c.Catalog.ShopID)
	if c.Catalog.ShopID == "" {
		c.Catalog.ShopID = lookupEnv("DRAFTDROP_CATALOG_SHOP_ID", "PRINTIFY_SHOP_ID")
	}
	if c.Catalog.TimeoutSeconds <= 0 {
		c.Catalog.TimeoutSeconds = defaultCatalogTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = lookupEnv("DRAFTDROP_NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// lookupEnv returns the first non-empty value among the named variables.
func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
