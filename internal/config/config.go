package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Govern    GovernConfig    `mapstructure:"govern"    validate:"required"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// ShutdownGrace bounds how long shutdown waits for background tasks.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
	// MinScore is the relevance score below which an analyzed posting is
	// skipped rather than accepted.
	MinScore int `mapstructure:"min_score" validate:"gte=0,lte=100"`
}

// GovernConfig contains the settings of the governed-call layer: rate
// limiter, circuit breaker and per-task-type deadlines.
type GovernConfig struct {
	// RateCapacity is the token bucket capacity.
	RateCapacity int `mapstructure:"rate_capacity" validate:"required,gt=0"`
	// RateRefillPerSec is the bucket refill rate in tokens per second.
	RateRefillPerSec float64 `mapstructure:"rate_refill_per_sec" validate:"required,gt=0"`
	// RateInitialWait is slept after the first failed acquire before polling.
	RateInitialWait time.Duration `mapstructure:"rate_initial_wait" validate:"gte=0"`
	// RatePollAttempts is the number of fixed-interval polls before the
	// acquire falls back to an unconditional slow poll.
	RatePollAttempts int `mapstructure:"rate_poll_attempts" validate:"gte=0"`
	// RatePollInterval is the fixed interval between polls.
	RatePollInterval time.Duration `mapstructure:"rate_poll_interval" validate:"gt=0"`
	// RateSlowPollInterval is the interval of the never-give-up fallback.
	RateSlowPollInterval time.Duration `mapstructure:"rate_slow_poll_interval" validate:"gt=0"`

	// BreakerFailureRate is the failure ratio (0..1] that trips the breaker.
	BreakerFailureRate float64 `mapstructure:"breaker_failure_rate" validate:"required,gt=0,lte=1"`
	// BreakerMinCalls is the minimum calls in a window before evaluation.
	BreakerMinCalls int `mapstructure:"breaker_min_calls" validate:"required,gt=0"`
	// BreakerWindow is the length of the counting window.
	BreakerWindow time.Duration `mapstructure:"breaker_window" validate:"gt=0"`
	// BreakerWaitDuration is how long the breaker stays open before a
	// half-open trial (and the idle-retry threshold).
	BreakerWaitDuration time.Duration `mapstructure:"breaker_wait_duration" validate:"gt=0"`
	// BreakerTrialCalls bounds concurrent trial calls in half-open.
	BreakerTrialCalls int `mapstructure:"breaker_trial_calls" validate:"required,gt=0"`

	// MaxConcurrentPerType bounds in-flight governed calls per task type.
	MaxConcurrentPerType int `mapstructure:"max_concurrent_per_type" validate:"required,gt=0"`

	// Per-task-type call deadlines.
	PrimaryAnalysisTimeout time.Duration `mapstructure:"primary_analysis_timeout" validate:"gt=0"`
	SkillExtractionTimeout time.Duration `mapstructure:"skill_extraction_timeout" validate:"gt=0"`
	LogAnalysisTimeout     time.Duration `mapstructure:"log_analysis_timeout"     validate:"gt=0"`
	OtherTimeout           time.Duration `mapstructure:"other_timeout"            validate:"gt=0"`
}

// PipelineConfig contains the settings of the backlog pipeline: workers,
// recovery loop, validator and fetch loop.
type PipelineConfig struct {
	// WorkerCount is the number of dispatcher workers draining the queue.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	// TickInterval is the recovery orchestrator's tick period.
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	// RetryWindow is the span within which Skipped/Failed postings remain
	// eligible for automatic re-admission.
	RetryWindow time.Duration `mapstructure:"retry_window" validate:"gt=0"`
	// AdmissionBatchSize bounds how many New postings one admission pulls.
	AdmissionBatchSize int `mapstructure:"admission_batch_size" validate:"required,gt=0"`
	// RecoveryDebounce is the minimum gap between two recovery actions.
	RecoveryDebounce time.Duration `mapstructure:"recovery_debounce" validate:"gt=0"`
	// AdmissionDebounce is the minimum gap between two admission actions.
	AdmissionDebounce time.Duration `mapstructure:"admission_debounce" validate:"gt=0"`
	// ValidationInterval is the minimum gap between validator runs.
	ValidationInterval time.Duration `mapstructure:"validation_interval" validate:"gt=0"`
	// ValidationBatchSize bounds how many Skipped postings one run checks.
	ValidationBatchSize int `mapstructure:"validation_batch_size" validate:"required,gt=0"`
	// FetchInterval is the period of the posting fetch loop. Zero disables it.
	FetchInterval time.Duration `mapstructure:"fetch_interval" validate:"gte=0"`
}
