// Package analyzer turns raw image bytes into listing copy using a vision
// model. Two backends are supported: an OpenAI-compatible chat completion
// endpoint (OpenRouter by default) and Google Gemini.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"draftdrop/internal/config"
	"draftdrop/internal/queue"
	"draftdrop/internal/services"
)

const stageName = "analyze"

// Analyzer describes an image.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte) (queue.Analysis, error)
}

// New builds the analyzer selected by cfg.Provider. A missing API key does
// not fail construction: the returned analyzer reports a configuration error
// on every call so the rest of the daemon keeps running.
func New(ctx context.Context, cfg config.Analyzer, opts ...Option) (Analyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Unavailable(services.Wrap(services.ErrConfiguration, stageName, "init",
			fmt.Sprintf("%s api key not configured", providerLabel(cfg.Provider)), nil)), nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	case "", config.ProviderOpenRouter:
		return NewClient(cfg, opts...), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init",
			fmt.Sprintf("unsupported provider %q", cfg.Provider), nil)
	}
}

func providerLabel(provider string) string {
	if strings.TrimSpace(provider) == "" {
		return config.ProviderOpenRouter
	}
	return provider
}

type unavailable struct {
	err error
}

// Unavailable returns an analyzer that fails every call with err.
func Unavailable(err error) Analyzer {
	return unavailable{err: err}
}

func (u unavailable) Analyze(context.Context, []byte) (queue.Analysis, error) {
	return queue.Analysis{}, u.err
}
