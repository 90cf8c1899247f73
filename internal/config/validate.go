package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate ensures the configuration is usable. Remote credentials are not
// checked here; a missing key disables only the collaborator that needs it.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWatcher(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateAnalyzer(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WatchDir == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if c.Paths.ArchiveDir == "" {
		return errors.New("paths.archive_dir must be set")
	}
	if filepath.Clean(c.Paths.WatchDir) == filepath.Clean(c.Paths.ArchiveDir) {
		return errors.New("paths.archive_dir must differ from paths.watch_dir")
	}
	return nil
}

func (c *Config) validateWatcher() error {
	if c.Watcher.StabilityMS <= 0 {
		return errors.New("watcher.stability_ms must be positive")
	}
	if c.Watcher.PollMS <= 0 {
		return errors.New("watcher.poll_ms must be positive")
	}
	if c.Watcher.PollMS > c.Watcher.StabilityMS {
		return fmt.Errorf("watcher.poll_ms (%d) must not exceed watcher.stability_ms (%d)", c.Watcher.PollMS, c.Watcher.StabilityMS)
	}
	if len(c.Watcher.Extensions) == 0 {
		return errors.New("watcher.extensions must list at least one extension")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrent < 1 {
		return errors.New("workflow.max_concurrent must be at least 1")
	}
	if c.Workflow.StaleProcessingMinutes < 0 {
		return errors.New("workflow.stale_processing_minutes must be zero or positive")
	}
	return nil
}

func (c *Config) validateAnalyzer() error {
	switch c.Analyzer.Provider {
	case ProviderOpenRouter, ProviderGemini:
	default:
		return fmt.Errorf("analyzer.provider: unsupported value %q (want %q or %q)", c.Analyzer.Provider, ProviderOpenRouter, ProviderGemini)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.PriceCents < 0 {
		return errors.New("catalog.price_cents must not be negative")
	}
	for _, id := range c.Catalog.VariantIDs {
		if id <= 0 {
			return fmt.Errorf("catalog.variant_ids: invalid id %d", id)
		}
	}
	return nil
}
