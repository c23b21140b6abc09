package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobsentry/api/internal/analysis"
	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/govern"
	"github.com/jobsentry/api/internal/store"
)

// Notifier delivers analysis outcomes to downstream consumers.
type Notifier interface {
	NotifyAnalyzed(ctx context.Context, posting *domain.Posting, result *analysis.Result) error
}

// DispatcherConfig holds the worker pool settings.
type DispatcherConfig struct {
	// WorkerCount is the number of dispatch workers.
	WorkerCount int

	// PollInterval is how long an idle worker sleeps before checking the
	// queue again.
	PollInterval time.Duration

	// ScoreThreshold is the minimum relevance score; postings scored
	// below it are skipped rather than analyzed.
	ScoreThreshold int

	// ShutdownGrace bounds how long Stop waits for in-flight work.
	ShutdownGrace time.Duration
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable
// defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount:    4,
		PollInterval:   time.Second,
		ScoreThreshold: 30,
		ShutdownGrace:  30 * time.Second,
	}
}

// Dispatcher drains the admission queue with a fixed pool of workers.
// Every LLM call goes through the governor; the dispatcher itself only
// tracks posting state transitions around the call.
type Dispatcher struct {
	store    store.PostingStore
	queue    *govern.ProcessingQueue
	governor govern.Governor
	analyzer analysis.Analyzer
	notifier Notifier
	config   DispatcherConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. notifier may be nil when no
// downstream delivery is configured.
func NewDispatcher(
	postingStore store.PostingStore,
	queue *govern.ProcessingQueue,
	governor govern.Governor,
	analyzer analysis.Analyzer,
	notifier Notifier,
	config DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	def := DefaultDispatcherConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = def.WorkerCount
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.ScoreThreshold <= 0 {
		config.ScoreThreshold = def.ScoreThreshold
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = def.ShutdownGrace
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:    postingStore,
		queue:    queue,
		governor: governor,
		analyzer: analyzer,
		notifier: notifier,
		config:   config,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.logger.Info("starting dispatcher", "workers", d.config.WorkerCount)
	for i := 0; i < d.config.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop signals the workers and waits, bounded by ShutdownGrace, for
// in-flight work to finish.
func (d *Dispatcher) Stop() {
	d.cancel()
	if !waitTimeout(&d.wg, d.config.ShutdownGrace) {
		d.logger.Warn("dispatcher workers still running after grace period, abandoning",
			"grace", d.config.ShutdownGrace)
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	log := d.logger.With("worker", id)

	for {
		ids := d.queue.Dequeue(1)
		if len(ids) == 0 {
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(d.config.PollInterval):
			}
			continue
		}

		d.process(log, ids[0])

		// Check for shutdown between items so a full queue cannot
		// starve Stop.
		select {
		case <-d.ctx.Done():
			return
		default:
		}
	}
}

// process runs one posting through a governed analysis call and records
// the outcome. Queue residency ends here regardless of outcome; failed
// postings re-enter through the recovery path, not the queue.
func (d *Dispatcher) process(log *slog.Logger, id uuid.UUID) {
	defer d.queue.MarkDone(id)
	log = log.With("posting_id", id)

	posting, err := d.store.GetByID(d.ctx, id)
	if err != nil {
		log.Error("failed to load queued posting", "error", err)
		return
	}

	if err := d.store.UpdateStatus(d.ctx, id, domain.PostingStatusInFlight); err != nil {
		log.Error("failed to mark posting in flight", "error", err)
		return
	}

	value, err := d.governor.Call(d.ctx, domain.TaskTypePrimaryAnalysis, func(ctx context.Context) (any, error) {
		return d.analyzer.Analyze(ctx, posting, domain.TaskTypePrimaryAnalysis)
	})
	if err != nil {
		d.recordFailure(log, id, err)
		return
	}

	result, ok := value.(*analysis.Result)
	if !ok || result == nil {
		log.Error("analyzer returned unexpected result type")
		d.recordFailure(log, id, analysis.ErrInvalidResponse)
		return
	}

	if result.Score < d.config.ScoreThreshold {
		if err := d.store.RecordAttempt(d.ctx, id, domain.PostingStatusSkipped); err != nil {
			log.Error("failed to record skipped posting", "error", err)
			return
		}
		log.Info("posting skipped", "score", result.Score, "threshold", d.config.ScoreThreshold)
		return
	}

	if err := d.store.RecordAttempt(d.ctx, id, domain.PostingStatusAnalyzed); err != nil {
		log.Error("failed to record analyzed posting", "error", err)
		return
	}
	log.Info("posting analyzed", "score", result.Score, "skills", len(result.Skills))

	if d.notifier != nil {
		if err := d.notifier.NotifyAnalyzed(d.ctx, posting, result); err != nil {
			// Delivery is best effort; the posting stays analyzed.
			log.Warn("failed to notify analysis result", "error", err)
		}
	}
}

// recordFailure marks a posting failed. Governance fast-fails never
// reached the model, so they do not consume an attempt.
func (d *Dispatcher) recordFailure(log *slog.Logger, id uuid.UUID, callErr error) {
	fastFail := errors.Is(callErr, govern.ErrBreakerOpen) ||
		errors.Is(callErr, govern.ErrConcurrencyLimit)

	var err error
	if fastFail {
		err = d.store.UpdateStatus(d.ctx, id, domain.PostingStatusFailed)
	} else {
		err = d.store.RecordAttempt(d.ctx, id, domain.PostingStatusFailed)
	}
	if err != nil {
		log.Error("failed to record failed posting", "error", err, "call_error", callErr)
		return
	}
	log.Warn("posting analysis failed", "error", callErr, "counted_attempt", !fastFail)
}
