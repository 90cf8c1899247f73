package config

const (
	defaultConfigPath             = "~/.config/draftdrop/config.toml"
	defaultWatchDir               = "~/draftdrop/inbox"
	defaultArchiveDir             = "~/draftdrop/archive"
	defaultStateDir               = "~/.local/share/draftdrop"
	defaultLogDir                 = "~/.local/share/draftdrop/logs"
	defaultAPIBind                = "127.0.0.1:7491"
	defaultStabilityMS            = 2000
	defaultPollMS                 = 100
	defaultMaxConcurrent          = 4
	defaultShutdownGraceSeconds   = 30
	defaultAnalyzerProvider       = ProviderOpenRouter
	defaultOpenRouterBaseURL      = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterModel        = "google/gemini-2.5-flash"
	defaultGeminiModel            = "gemini-1.5-flash"
	defaultAnalyzerTitle          = "draftdrop"
	defaultAnalyzerTimeoutSeconds = 60
	defaultAnalyzerMaxImageBytes  = 20 << 20
	defaultCatalogBaseURL         = "https://api.printify.com"
	defaultCatalogPriceCents      = 2499
	defaultCatalogTimeoutSeconds  = 60
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultMetricsEnabled         = true
	defaultAutoProcess            = true
	defaultStaleProcessingMinutes = 0
	defaultNtfyTimeoutSeconds     = 10
)

// Supported analyzer providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

var defaultExtensions = []string{"png", "jpg", "jpeg"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:   defaultWatchDir,
			ArchiveDir: defaultArchiveDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Watcher: Watcher{
			StabilityMS: defaultStabilityMS,
			PollMS:      defaultPollMS,
			Extensions:  append([]string(nil), defaultExtensions...),
			AutoProcess: defaultAutoProcess,
		},
		Workflow: Workflow{
			MaxConcurrent:          defaultMaxConcurrent,
			ShutdownGraceSeconds:   defaultShutdownGraceSeconds,
			StaleProcessingMinutes: defaultStaleProcessingMinutes,
		},
		Analyzer: Analyzer{
			Provider:       defaultAnalyzerProvider,
			Title:          defaultAnalyzerTitle,
			TimeoutSeconds: defaultAnalyzerTimeoutSeconds,
			MaxImageBytes:  defaultAnalyzerMaxImageBytes,
		},
		Catalog: Catalog{
			BaseURL:        defaultCatalogBaseURL,
			PriceCents:     defaultCatalogPriceCents,
			TimeoutSeconds: defaultCatalogTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Metrics: Metrics{
			Enabled: defaultMetricsEnabled,
		},
	}
}
