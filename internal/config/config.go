package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Engine   EngineConfig   `mapstructure:"engine" validate:"required"`
	Scraper  ScraperConfig  `mapstructure:"scraper" validate:"required"`
}

// ServerConfig contains process-level settings.
type ServerConfig struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Path is the filesystem location of the embedded database file.
	Path string `mapstructure:"path" validate:"required"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`

	// MaxRetries is the number of retry attempts for transient API failures.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// RetryDelaySeconds is the base delay for exponential backoff between retries.
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
}

// ScraperConfig points at the external browser-automation scraper the
// engine ingests schedules and results from.
type ScraperConfig struct {
	// BaseURL is the scraper bridge's HTTP endpoint.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// TimeoutSeconds bounds one bridge request. Scrapes drive a real
	// browser upstream, so the bound is generous.
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=1,lte=600"`

	// ScreenshotDir is where the scraper deposits odds-page screenshots
	// for image analysis, keyed by match code.
	ScreenshotDir string `mapstructure:"screenshot_dir"`
}

// EngineConfig tunes the orchestration engine.
type EngineConfig struct {
	// QuickCapacity bounds concurrently running quick-prediction batches.
	QuickCapacity int `mapstructure:"quick_capacity" validate:"gte=1,lte=16"`

	// DeepCapacity bounds concurrently running deep-analysis batches.
	// Deep analyses fan out to multiple sources, so the cap is lower.
	DeepCapacity int `mapstructure:"deep_capacity" validate:"gte=1,lte=16"`

	// TickSeconds is how often the scheduler loop checks for due jobs.
	TickSeconds int `mapstructure:"tick_seconds" validate:"gte=1,lte=3600"`

	// TaskTTLMinutes is how long finished tasks stay queryable before
	// eviction.
	TaskTTLMinutes int `mapstructure:"task_ttl_minutes" validate:"gte=1,lte=1440"`

	// CollectorAttempts is the per-source retry budget during multi-source
	// collection.
	CollectorAttempts int `mapstructure:"collector_attempts" validate:"gte=1,lte=10"`

	// AccuracyLookbackDays bounds how far back accuracy recomputes reach.
	AccuracyLookbackDays int `mapstructure:"accuracy_lookback_days" validate:"gte=1,lte=365"`

	// PredictionWindowHours is how far ahead the quick-prediction stage
	// looks for upcoming matches.
	PredictionWindowHours int `mapstructure:"prediction_window_hours" validate:"gte=1,lte=168"`
}
