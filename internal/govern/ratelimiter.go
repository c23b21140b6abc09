package govern

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig holds the token bucket and blocking-acquire settings.
type RateLimiterConfig struct {
	// Capacity is the bucket capacity (burst size).
	Capacity int

	// RefillPerSec is the refill rate in tokens per second.
	RefillPerSec float64

	// InitialWait is slept after the first failed acquire before the
	// fixed-interval polling phase starts.
	InitialWait time.Duration

	// PollAttempts is the number of fixed-interval polls before Acquire
	// falls back to the unconditional slow poll.
	PollAttempts int

	// PollInterval is the interval between fixed polls.
	PollInterval time.Duration

	// SlowPollInterval is the interval of the never-give-up fallback poll.
	SlowPollInterval time.Duration
}

// DefaultRateLimiterConfig returns a RateLimiterConfig with reasonable defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Capacity:         3,
		RefillPerSec:     0.2,
		InitialWait:      5 * time.Second,
		PollAttempts:     20,
		PollInterval:     500 * time.Millisecond,
		SlowPollInterval: 5 * time.Second,
	}
}

// RateLimiter is the token-bucket gate in front of every governed call.
// TryAcquire is non-blocking; Acquire blocks in three stages (initial wait,
// bounded fixed-interval polling, unconditional slow polling) and never
// gives up on its own. Any overall deadline is the caller's responsibility,
// enforced through the context. There is no fairness guarantee among
// concurrent waiters beyond bucket refill semantics.
type RateLimiter struct {
	limiter *rate.Limiter
	config  RateLimiterConfig
	logger  *slog.Logger
}

// NewRateLimiter creates a RateLimiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.Capacity <= 0 {
		config.Capacity = def.Capacity
	}
	if config.RefillPerSec <= 0 {
		config.RefillPerSec = def.RefillPerSec
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.SlowPollInterval <= 0 {
		config.SlowPollInterval = def.SlowPollInterval
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(config.RefillPerSec), config.Capacity),
		config:  config,
		logger:  logger,
	}
}

// TryAcquire attempts to take n tokens without blocking and reports whether
// it succeeded.
func (rl *RateLimiter) TryAcquire(n int) bool {
	return rl.limiter.AllowN(time.Now(), n)
}

// Acquire takes one token, blocking until one is available or ctx is done.
// On the first miss it sleeps InitialWait, then polls PollAttempts times at
// PollInterval, then falls back to polling at SlowPollInterval indefinitely.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if rl.limiter.Allow() {
		return nil
	}

	if rl.config.InitialWait > 0 {
		rl.logger.Debug("rate limit hit, entering initial wait",
			"wait", rl.config.InitialWait)
		if err := sleepCtx(ctx, rl.config.InitialWait); err != nil {
			return err
		}
	}

	for attempt := 0; attempt < rl.config.PollAttempts; attempt++ {
		if rl.limiter.Allow() {
			return nil
		}
		if err := sleepCtx(ctx, rl.config.PollInterval); err != nil {
			return err
		}
	}

	// Bounded polling exhausted. Keep trying at the slow interval until a
	// token shows up or the caller cancels.
	rl.logger.Warn("rate limit still unsatisfied after polling, falling back to slow poll",
		"attempts", rl.config.PollAttempts,
		"slow_poll_interval", rl.config.SlowPollInterval)

	for {
		if rl.limiter.Allow() {
			return nil
		}
		if err := sleepCtx(ctx, rl.config.SlowPollInterval); err != nil {
			return err
		}
	}
}

// sleepCtx sleeps for d or until ctx is done, returning the context error
// in the latter case.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
