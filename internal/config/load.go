package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables (prefixed JOBSENTRY_, nested keys
// joined with underscores, e.g. JOBSENTRY_SERVER_PORT) take precedence
// over file values, which take precedence over defaults.
// Returns a populated Config struct or an error if loading or validation
// fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/jobsentry")

	v.SetEnvPrefix("JOBSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults suffice.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the default value for every setting so a minimal
// environment (database URL + API key) is enough to start the server.
func setDefaults(v *viper.Viper) {
	// Secrets default to empty so the keys are known to viper and can be
	// supplied through the environment alone; validation rejects them when
	// they stay empty.
	v.SetDefault("database.url", "")
	v.SetDefault("llm.gemini_api_key", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_grace", 30*time.Second)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.min_score", 40)

	v.SetDefault("govern.rate_capacity", 3)
	v.SetDefault("govern.rate_refill_per_sec", 0.2)
	v.SetDefault("govern.rate_initial_wait", 5*time.Second)
	v.SetDefault("govern.rate_poll_attempts", 20)
	v.SetDefault("govern.rate_poll_interval", 500*time.Millisecond)
	v.SetDefault("govern.rate_slow_poll_interval", 5*time.Second)
	v.SetDefault("govern.breaker_failure_rate", 0.5)
	v.SetDefault("govern.breaker_min_calls", 5)
	v.SetDefault("govern.breaker_window", time.Minute)
	v.SetDefault("govern.breaker_wait_duration", time.Minute)
	v.SetDefault("govern.breaker_trial_calls", 2)
	v.SetDefault("govern.max_concurrent_per_type", 2)
	v.SetDefault("govern.primary_analysis_timeout", 90*time.Second)
	v.SetDefault("govern.skill_extraction_timeout", 60*time.Second)
	v.SetDefault("govern.log_analysis_timeout", 45*time.Second)
	v.SetDefault("govern.other_timeout", 30*time.Second)

	v.SetDefault("pipeline.worker_count", 2)
	v.SetDefault("pipeline.tick_interval", 30*time.Second)
	v.SetDefault("pipeline.retry_window", 48*time.Hour)
	v.SetDefault("pipeline.admission_batch_size", 50)
	v.SetDefault("pipeline.recovery_debounce", 5*time.Minute)
	v.SetDefault("pipeline.admission_debounce", time.Minute)
	v.SetDefault("pipeline.validation_interval", 2*time.Minute)
	v.SetDefault("pipeline.validation_batch_size", 10)
	v.SetDefault("pipeline.fetch_interval", 30*time.Minute)
}
