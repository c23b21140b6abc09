package task

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/store"
)

// ContentFilter is a pure collaborator deciding whether a posting is still
// worth analyzing. It must not touch the governed LLM.
type ContentFilter interface {
	// Keep reports whether the posting passes the filter.
	Keep(posting *domain.Posting) bool
}

// Liveness is the verdict of an upstream liveness probe.
type Liveness int

// Liveness verdicts
const (
	// LivenessAlive means the backing resource is confirmed reachable.
	LivenessAlive Liveness = iota
	// LivenessGone means the backing resource is confirmed removed.
	LivenessGone
	// LivenessUnknown covers ambiguous outcomes (rate limited, 5xx);
	// the validator treats it as alive.
	LivenessUnknown
)

// String returns a human-readable name for the verdict.
func (l Liveness) String() string {
	switch l {
	case LivenessAlive:
		return "alive"
	case LivenessGone:
		return "gone"
	case LivenessUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// LivenessChecker verifies that a posting's backing resource still exists
// upstream, without using the governed LLM.
type LivenessChecker interface {
	Check(ctx context.Context, url string) (Liveness, error)
}

// ValidatorConfig holds the opportunistic validator settings.
type ValidatorConfig struct {
	// Interval is the minimum gap between two validation runs.
	Interval time.Duration

	// BatchSize bounds how many skipped postings one run checks.
	BatchSize int

	// RetryWindow excludes skipped postings older than the window; those
	// belong to the manual finalize path.
	RetryWindow time.Duration

	// ShutdownGrace bounds how long Stop waits for a running batch.
	ShutdownGrace time.Duration
}

// DefaultValidatorConfig returns a ValidatorConfig with reasonable defaults.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		Interval:      2 * time.Minute,
		BatchSize:     10,
		RetryWindow:   48 * time.Hour,
		ShutdownGrace: 30 * time.Second,
	}
}

// OpportunisticValidator does useful non-governed work while the LLM is
// busy: it revalidates recently skipped postings, purging the ones whose
// content fails the filter or whose upstream resource is confirmed gone,
// and resetting the rest to New for a future governed call.
//
// TriggerIfDue is wired as the governor's busy hook, so the validator's
// clock is the status-reporting path of active governed calls. An atomic
// in-flight flag prevents overlapping runs; all item work happens on
// background goroutines and never delays the in-flight governed call.
type OpportunisticValidator struct {
	store    store.PostingStore
	filter   ContentFilter
	liveness LivenessChecker
	config   ValidatorConfig
	logger   *slog.Logger

	inFlight atomic.Bool
	lastRun  atomic.Int64
	wg       sync.WaitGroup
}

// NewOpportunisticValidator creates an OpportunisticValidator.
func NewOpportunisticValidator(
	postingStore store.PostingStore,
	filter ContentFilter,
	liveness LivenessChecker,
	config ValidatorConfig,
	logger *slog.Logger,
) *OpportunisticValidator {
	def := DefaultValidatorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.RetryWindow <= 0 {
		config.RetryWindow = def.RetryWindow
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = def.ShutdownGrace
	}

	return &OpportunisticValidator{
		store:    postingStore,
		filter:   filter,
		liveness: liveness,
		config:   config,
		logger:   logger,
	}
}

// TriggerIfDue starts a validation run when the interval has elapsed and
// no run is in flight. It returns immediately; the run happens on its own
// goroutine. Reports whether a run was started.
func (v *OpportunisticValidator) TriggerIfDue() bool {
	now := time.Now().UnixNano()
	if now-v.lastRun.Load() < v.config.Interval.Nanoseconds() {
		return false
	}

	if !v.inFlight.CompareAndSwap(false, true) {
		return false
	}
	v.lastRun.Store(now)

	v.wg.Add(1)
	go v.run()
	return true
}

// Stop waits, bounded by ShutdownGrace, for a running batch to finish.
func (v *OpportunisticValidator) Stop() {
	if !waitTimeout(&v.wg, v.config.ShutdownGrace) {
		v.logger.Warn("validator batch still running after grace period, abandoning",
			"grace", v.config.ShutdownGrace)
	}
}

// run validates one batch of skipped postings, each independently.
func (v *OpportunisticValidator) run() {
	defer v.wg.Done()
	defer v.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	batch, err := v.store.FindRetryable(ctx,
		[]domain.PostingStatus{domain.PostingStatusSkipped},
		v.config.RetryWindow,
		v.config.BatchSize,
	)
	if err != nil {
		v.logger.Error("validator failed to load skipped postings", "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	v.logger.Debug("validating skipped postings", "count", len(batch))

	var itemWG sync.WaitGroup
	for _, p := range batch {
		itemWG.Add(1)
		go func(p *domain.Posting) {
			defer itemWG.Done()
			v.validateOne(ctx, p)
		}(p)
	}
	itemWG.Wait()
}

// validateOne applies the two cheap checks to a single posting. Failures
// are logged per item and never abort the batch.
func (v *OpportunisticValidator) validateOne(ctx context.Context, p *domain.Posting) {
	log := v.logger.With("posting_id", p.ID)

	if !v.filter.Keep(p) {
		if err := v.store.UpdateStatus(ctx, p.ID, domain.PostingStatusPurged); err != nil {
			log.Error("failed to purge filtered posting", "error", err)
		} else {
			log.Info("purged posting", "reason", "content filter rejected")
		}
		return
	}

	verdict, err := v.liveness.Check(ctx, p.URL)
	if err != nil {
		// Assume transient and keep the posting skipped for a later run.
		log.Warn("liveness check failed, keeping posting", "error", err)
		return
	}

	switch verdict {
	case LivenessGone:
		if err := v.store.UpdateStatus(ctx, p.ID, domain.PostingStatusPurged); err != nil {
			log.Error("failed to purge dead posting", "error", err)
		} else {
			log.Info("purged posting", "reason", "upstream confirmed gone")
		}

	default:
		// Alive, or ambiguous treated as alive: eligible again.
		if err := v.store.UpdateStatus(ctx, p.ID, domain.PostingStatusNew); err != nil {
			log.Error("failed to reset validated posting", "error", err)
		} else {
			log.Info("reset posting for re-analysis", "verdict", verdict)
		}
	}
}
