package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults. Capacities and stage tuning mirror the values the engine
	// was operated with before they became configurable.
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.path", "pitchside.db")
	// Registered with an empty default so AutomaticEnv can bind it during
	// Unmarshal; validation rejects the empty value afterwards.
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("engine.quick_capacity", 3)
	v.SetDefault("engine.deep_capacity", 2)
	v.SetDefault("engine.tick_seconds", 60)
	v.SetDefault("engine.task_ttl_minutes", 60)
	v.SetDefault("engine.collector_attempts", 3)
	v.SetDefault("engine.accuracy_lookback_days", 30)
	v.SetDefault("engine.prediction_window_hours", 12)
	v.SetDefault("scraper.base_url", "http://127.0.0.1:9321")
	v.SetDefault("scraper.timeout_seconds", 180)
	v.SetDefault("scraper.screenshot_dir", "screenshots")

	// Optional config file alongside the binary.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables: PITCHSIDE_SERVER_LOG_LEVEL, etc.
	v.SetEnvPrefix("PITCHSIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
