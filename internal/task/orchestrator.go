package task

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/govern"
	"github.com/jobsentry/api/internal/store"
)

// OrchestratorConfig holds the recovery orchestrator settings.
type OrchestratorConfig struct {
	// TickInterval is the period of the control loop.
	TickInterval time.Duration

	// RetryWindow is the span within which Skipped/Failed postings remain
	// eligible for automatic re-admission.
	RetryWindow time.Duration

	// AdmissionBatchSize bounds how many postings one admission pulls.
	AdmissionBatchSize int

	// RecoveryDebounce is the minimum gap between two recovery actions.
	RecoveryDebounce time.Duration

	// AdmissionDebounce is the minimum gap between two admission actions.
	AdmissionDebounce time.Duration

	// ShutdownGrace bounds how long Stop waits for running actions.
	ShutdownGrace time.Duration
}

// DefaultOrchestratorConfig returns an OrchestratorConfig with reasonable
// defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TickInterval:       30 * time.Second,
		RetryWindow:        48 * time.Hour,
		AdmissionBatchSize: 50,
		RecoveryDebounce:   5 * time.Minute,
		AdmissionDebounce:  time.Minute,
		ShutdownGrace:      30 * time.Second,
	}
}

// RecoveryOrchestrator is the periodic control loop that decides when to
// re-admit failed or skipped postings and when to pull new postings into
// the admission queue. It acts only while the governor is idle and the
// breaker is not open; each of its two actions is debounced by an atomic
// compare-and-swap on a last-run timestamp and dispatched on its own
// goroutine, so a slow store query never delays the next tick's check and
// two runs of the same action never overlap.
type RecoveryOrchestrator struct {
	store    store.PostingStore
	governor govern.Governor
	breaker  *govern.BreakerController
	queue    *govern.ProcessingQueue
	config   OrchestratorConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup
	taskWG sync.WaitGroup

	lastRecoveryRun  atomic.Int64
	lastAdmissionRun atomic.Int64

	// In-flight flags are the mutual exclusion per action; the debounce
	// stamps only space out starts. An action slower than its debounce
	// still never overlaps its next run.
	recoveryInFlight  atomic.Bool
	admissionInFlight atomic.Bool
}

// NewRecoveryOrchestrator creates a RecoveryOrchestrator. The breaker is
// the same controller the governor drives; the orchestrator only uses its
// idle-retry operation.
func NewRecoveryOrchestrator(
	postingStore store.PostingStore,
	governor govern.Governor,
	breaker *govern.BreakerController,
	queue *govern.ProcessingQueue,
	config OrchestratorConfig,
	logger *slog.Logger,
) *RecoveryOrchestrator {
	def := DefaultOrchestratorConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = def.TickInterval
	}
	if config.RetryWindow <= 0 {
		config.RetryWindow = def.RetryWindow
	}
	if config.AdmissionBatchSize <= 0 {
		config.AdmissionBatchSize = def.AdmissionBatchSize
	}
	if config.RecoveryDebounce <= 0 {
		config.RecoveryDebounce = def.RecoveryDebounce
	}
	if config.AdmissionDebounce <= 0 {
		config.AdmissionDebounce = def.AdmissionDebounce
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = def.ShutdownGrace
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RecoveryOrchestrator{
		store:    postingStore,
		governor: governor,
		breaker:  breaker,
		queue:    queue,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start recovers postings orphaned in flight by a previous run, then
// begins the control loop.
func (o *RecoveryOrchestrator) Start() {
	o.recoverOrphans()

	o.loopWG.Add(1)
	go o.run()
}

// Stop cancels the loop's scheduling and waits, bounded by ShutdownGrace,
// for any still-running recovery or admission task.
func (o *RecoveryOrchestrator) Stop() {
	o.cancel()
	o.loopWG.Wait()

	if !waitTimeout(&o.taskWG, o.config.ShutdownGrace) {
		o.logger.Warn("orchestrator actions still running after grace period, abandoning",
			"grace", o.config.ShutdownGrace)
	}
	o.logger.Info("recovery orchestrator stopped")
}

// recoverOrphans resets postings stuck in queued or in_flight by a crash.
// The in-memory queue is empty after a restart, so those statuses cannot
// be true; the store is the durable source of truth.
func (o *RecoveryOrchestrator) recoverOrphans() {
	ctx, cancel := context.WithTimeout(o.ctx, time.Minute)
	defer cancel()

	for _, status := range []domain.PostingStatus{
		domain.PostingStatusQueued,
		domain.PostingStatusInFlight,
	} {
		orphans, err := o.store.FindByStatus(ctx, status, 1000)
		if err != nil {
			o.logger.Error("failed to query orphaned postings",
				"status", status,
				"error", err)
			continue
		}
		if len(orphans) == 0 {
			continue
		}

		reset, err := o.store.UpdateStatusBatch(ctx, postingIDs(orphans), domain.PostingStatusNew)
		if err != nil {
			o.logger.Error("failed to reset orphaned postings",
				"status", status,
				"error", err)
			continue
		}
		o.logger.Info("reset orphaned postings after restart",
			"status", status,
			"count", reset)
	}
}

// run drives the ticker until the context is cancelled.
func (o *RecoveryOrchestrator) run() {
	defer o.loopWG.Done()

	o.logger.Info("recovery orchestrator started",
		"tick_interval", o.config.TickInterval,
		"retry_window", o.config.RetryWindow)

	ticker := time.NewTicker(o.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

// tick evaluates one scheduling decision. It never blocks on store I/O:
// the two actions run on their own goroutines.
func (o *RecoveryOrchestrator) tick() {
	if o.governor.ActiveCount() != 0 {
		return
	}

	if o.governor.BreakerState() == govern.StateOpen {
		// The breaker is open with nothing in flight. Automatic breaker
		// schedulers assume ongoing traffic; give it the idle nudge.
		o.breaker.MaybeIdleRetry()
		return
	}

	now := time.Now().UnixNano()

	if o.tryClaim(&o.lastRecoveryRun, &o.recoveryInFlight, now, o.config.RecoveryDebounce) {
		o.taskWG.Add(1)
		go o.runAction("recovery", &o.recoveryInFlight, o.recoveryAction)
	}

	if o.tryClaim(&o.lastAdmissionRun, &o.admissionInFlight, now, o.config.AdmissionDebounce) {
		o.taskWG.Add(1)
		go o.runAction("admission", &o.admissionInFlight, o.admissionAction)
	}
}

// tryClaim admits one run of an action: the debounce stamp spaces out
// starts, the in-flight flag guarantees a prior run has finished. A run
// slower than its debounce loses the flag swap and is skipped.
func (o *RecoveryOrchestrator) tryClaim(last *atomic.Int64, inFlight *atomic.Bool, now int64, debounce time.Duration) bool {
	if now-last.Load() < debounce.Nanoseconds() {
		return false
	}
	if !inFlight.CompareAndSwap(false, true) {
		return false
	}
	last.Store(now)
	return true
}

// runAction executes one action with panic and error containment; the loop
// must keep scheduling no matter what an action does.
func (o *RecoveryOrchestrator) runAction(name string, inFlight *atomic.Bool, action func(context.Context) error) {
	defer o.taskWG.Done()
	defer inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrator action panicked",
				"action", name,
				"panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(o.ctx, time.Minute)
	defer cancel()

	if err := action(ctx); err != nil {
		o.logger.Error("orchestrator action failed, will retry next tick",
			"action", name,
			"error", err)
	}
}

// recoveryAction resets Failed and Skipped postings inside the retry
// window back to New so admission can pick them up again.
func (o *RecoveryOrchestrator) recoveryAction(ctx context.Context) error {
	retryable, err := o.store.FindRetryable(ctx,
		[]domain.PostingStatus{domain.PostingStatusFailed, domain.PostingStatusSkipped},
		o.config.RetryWindow,
		o.config.AdmissionBatchSize,
	)
	if err != nil {
		return err
	}
	if len(retryable) == 0 {
		return nil
	}

	reset, err := o.store.UpdateStatusBatch(ctx, postingIDs(retryable), domain.PostingStatusNew)
	if err != nil {
		return err
	}

	o.logger.Info("recovered postings for re-admission", "count", reset)
	return nil
}

// admissionAction pulls a bounded batch of New postings into the queue and
// marks the admitted ones Queued. It also re-offers postings already
// marked Queued in the store; after a restart those exist only in the
// store and the queue's dedup makes the re-offer free otherwise.
func (o *RecoveryOrchestrator) admissionAction(ctx context.Context) error {
	fresh, err := o.store.FindByStatus(ctx, domain.PostingStatusNew, o.config.AdmissionBatchSize)
	if err != nil {
		return err
	}

	if len(fresh) > 0 {
		admitted := o.queue.EnqueueBatch(postingIDs(fresh))
		if _, err := o.store.UpdateStatusBatch(ctx, postingIDs(fresh), domain.PostingStatusQueued); err != nil {
			return err
		}
		o.logger.Info("admitted new postings",
			"offered", len(fresh),
			"admitted", admitted)
	}

	requeue, err := o.store.FindByStatus(ctx, domain.PostingStatusQueued, o.config.AdmissionBatchSize)
	if err != nil {
		return err
	}
	if len(requeue) > 0 {
		if readmitted := o.queue.EnqueueBatch(postingIDs(requeue)); readmitted > 0 {
			o.logger.Info("re-admitted queued postings", "count", readmitted)
		}
	}

	return nil
}

// postingIDs extracts the ids of a posting slice.
func postingIDs(postings []*domain.Posting) []uuid.UUID {
	ids := make([]uuid.UUID, len(postings))
	for i, p := range postings {
		ids[i] = p.ID
	}
	return ids
}

// waitTimeout waits for wg up to d and reports whether it finished in time.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
