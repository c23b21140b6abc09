package govern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jobsentry/api/internal/domain"
)

// CallFunc is the unit of work executed under governance. It must honor
// ctx cancellation; the governor cancels it when the task type's deadline
// expires.
type CallFunc func(ctx context.Context) (any, error)

// Snapshot is a point-in-time view of the governance layer for the status
// endpoint and external metrics polling.
type Snapshot struct {
	Active        int64            `json:"active"`
	ActiveByType  map[string]int64 `json:"active_by_type"`
	BreakerState  string           `json:"breaker_state"`
	QueueDepth    int              `json:"queue_depth"`
	QueueInFlight int              `json:"queue_in_flight"`
}

// Governor is the single entry point for governed LLM calls. The logging
// decorator and the pipeline depend on this interface, not the concrete type.
type Governor interface {
	// Call runs fn under the rate limiter, circuit breaker and the task
	// type's deadline. See RequestGovernor.Call for the exact pipeline.
	Call(ctx context.Context, taskType domain.TaskType, fn CallFunc) (any, error)

	// ActiveCount returns the total number of in-flight governed calls.
	ActiveCount() int64

	// ActiveByType returns the in-flight count per task type name.
	ActiveByType() map[string]int64

	// BreakerState returns the circuit breaker state.
	BreakerState() CircuitState

	// Snapshot returns the status view. Calling it while the governor is
	// busy also triggers the registered busy hook (the opportunistic
	// validator), making status polling double as the validator's clock.
	Snapshot() Snapshot
}

// GovernorConfig holds per-task-type limits of the request governor.
type GovernorConfig struct {
	// MaxConcurrentPerType bounds in-flight calls per task type.
	MaxConcurrentPerType int64

	// Timeouts holds the hard call deadline for each task type.
	Timeouts [domain.NumTaskTypes]time.Duration
}

// DefaultGovernorConfig returns a GovernorConfig with reasonable defaults.
func DefaultGovernorConfig() GovernorConfig {
	var cfg GovernorConfig
	cfg.MaxConcurrentPerType = 2
	cfg.Timeouts[domain.TaskTypePrimaryAnalysis] = 90 * time.Second
	cfg.Timeouts[domain.TaskTypeSkillExtraction] = 60 * time.Second
	cfg.Timeouts[domain.TaskTypeLogAnalysis] = 45 * time.Second
	cfg.Timeouts[domain.TaskTypeOther] = 30 * time.Second
	return cfg
}

// RequestGovernor mediates every call to the external LLM: it acquires a
// rate-limit token (blocking), enforces the per-task-type concurrency
// bound, runs the call under the circuit breaker with the task type's
// deadline, and drives the breaker's forced drain-to-close transition when
// in-flight calls reach zero.
//
// The active counters are atomics; the hot call path takes no locks.
type RequestGovernor struct {
	limiter *RateLimiter
	breaker *BreakerController
	queue   *ProcessingQueue
	config  GovernorConfig
	logger  *slog.Logger

	activeTotal  atomic.Int64
	activeByType [domain.NumTaskTypes]atomic.Int64

	// busyHook is invoked from Snapshot while calls are in flight. Holds a
	// func(); the hook must not block.
	busyHook atomic.Value
}

// NewRequestGovernor creates a RequestGovernor over the given limiter,
// breaker and admission queue.
func NewRequestGovernor(
	limiter *RateLimiter,
	breaker *BreakerController,
	queue *ProcessingQueue,
	config GovernorConfig,
	logger *slog.Logger,
) *RequestGovernor {
	if config.MaxConcurrentPerType <= 0 {
		config.MaxConcurrentPerType = DefaultGovernorConfig().MaxConcurrentPerType
	}
	def := DefaultGovernorConfig()
	for i := range config.Timeouts {
		if config.Timeouts[i] <= 0 {
			config.Timeouts[i] = def.Timeouts[i]
		}
	}

	return &RequestGovernor{
		limiter: limiter,
		breaker: breaker,
		queue:   queue,
		config:  config,
		logger:  logger,
	}
}

// SetBusyHook registers the function invoked from Snapshot whenever calls
// are in flight. The hook must return quickly; long work belongs on its own
// goroutine.
func (g *RequestGovernor) SetBusyHook(hook func()) {
	g.busyHook.Store(hook)
}

// Call implements Governor.
func (g *RequestGovernor) Call(
	ctx context.Context,
	taskType domain.TaskType,
	fn CallFunc,
) (any, error) {
	if !taskType.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTaskType, taskType)
	}

	// Per-type admission under the configured bound, claimed before the
	// token so a saturated type never burns tokens other types could use.
	for {
		cur := g.activeByType[taskType].Load()
		if cur >= g.config.MaxConcurrentPerType {
			return nil, fmt.Errorf("%w: %s at %d", ErrConcurrencyLimit, taskType, cur)
		}
		if g.activeByType[taskType].CompareAndSwap(cur, cur+1) {
			break
		}
	}

	// The total is counted only once the token is held: a limiter waiter is
	// not an in-flight call and must not hold off drain-to-close.
	if err := g.limiter.Acquire(ctx); err != nil {
		g.activeByType[taskType].Add(-1)
		return nil, fmt.Errorf("rate limit acquire: %w", err)
	}
	g.activeTotal.Add(1)
	defer g.finish(taskType)

	if err := g.breaker.Allow(); err != nil {
		// Fast-fail; a rejected call is not a breaker failure.
		return nil, err
	}

	timeout := g.config.Timeouts[taskType]
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(callCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s after %s", ErrCallTimeout, taskType, timeout)
		}
		g.breaker.RecordFailure()
		return nil, err
	}

	g.breaker.RecordSuccess()
	return result, nil
}

// finish decrements the counters unconditionally on call exit and applies
// drain-to-close when the governor goes idle while the breaker is open.
func (g *RequestGovernor) finish(taskType domain.TaskType) {
	g.activeByType[taskType].Add(-1)
	if g.activeTotal.Add(-1) == 0 && g.breaker.State() == StateOpen {
		g.breaker.ForceClose("in-flight calls drained to zero")
	}
}

// ActiveCount implements Governor.
func (g *RequestGovernor) ActiveCount() int64 {
	return g.activeTotal.Load()
}

// ActiveByType implements Governor. Per-type counts include calls holding
// a slot while still waiting on the rate limiter, so a sum over types may
// briefly exceed ActiveCount.
func (g *RequestGovernor) ActiveByType() map[string]int64 {
	out := make(map[string]int64, domain.NumTaskTypes)
	for t := domain.TaskTypePrimaryAnalysis; t < domain.NumTaskTypes; t++ {
		out[t.String()] = g.activeByType[t].Load()
	}
	return out
}

// BreakerState implements Governor.
func (g *RequestGovernor) BreakerState() CircuitState {
	return g.breaker.State()
}

// Snapshot implements Governor.
func (g *RequestGovernor) Snapshot() Snapshot {
	active := g.activeTotal.Load()

	if active > 0 {
		if hook, ok := g.busyHook.Load().(func()); ok && hook != nil {
			hook()
		}
	}

	snap := Snapshot{
		Active:       active,
		ActiveByType: g.ActiveByType(),
		BreakerState: g.breaker.State().String(),
	}
	if g.queue != nil {
		snap.QueueDepth = g.queue.Len()
		snap.QueueInFlight = g.queue.InFlightCount()
	}
	return snap
}
