package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsentry/api/internal/analysis"
	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/govern"
)

type mockAnalyzer struct {
	AnalyzeFn func(ctx context.Context, posting *domain.Posting, taskType domain.TaskType) (*analysis.Result, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, posting *domain.Posting, taskType domain.TaskType) (*analysis.Result, error) {
	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, posting, taskType)
	}
	return &analysis.Result{Summary: "ok", Score: 80}, nil
}

type mockNotifier struct {
	mu       sync.Mutex
	notified []*domain.Posting
	err      error
}

func (m *mockNotifier) NotifyAnalyzed(ctx context.Context, posting *domain.Posting, result *analysis.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, posting)
	return m.err
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notified)
}

func newQueuedPosting(t *testing.T, mem *MockPostingStore, url string) *domain.Posting {
	t.Helper()
	p, err := domain.NewPosting(url, "title", "body")
	require.NoError(t, err)
	p.Status = domain.PostingStatusQueued
	require.NoError(t, mem.Create(context.Background(), p))
	return p
}

func newTestDispatcher(mem *MockPostingStore, g govern.Governor, a analysis.Analyzer, n Notifier) *Dispatcher {
	return NewDispatcher(mem, govern.NewProcessingQueue(testLogger()), g, a, n, DispatcherConfig{
		WorkerCount:  1,
		PollInterval: time.Millisecond,
	}, testLogger())
}

func TestDispatcher_ProcessAnalyzesPosting(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	p := newQueuedPosting(t, mem, "https://example.com/good")
	notifier := &mockNotifier{}

	d := newTestDispatcher(mem, &mockGovernor{}, &mockAnalyzer{}, notifier)
	d.queue.EnqueueBatch([]uuid.UUID{p.ID})
	d.process(d.logger, p.ID)

	got, err := mem.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostingStatusAnalyzed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, 0, d.queue.InFlightCount())
}

func TestDispatcher_ProcessSkipsLowScore(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	p := newQueuedPosting(t, mem, "https://example.com/irrelevant")
	notifier := &mockNotifier{}

	analyzer := &mockAnalyzer{AnalyzeFn: func(context.Context, *domain.Posting, domain.TaskType) (*analysis.Result, error) {
		return &analysis.Result{Summary: "meh", Score: 5}, nil
	}}
	d := newTestDispatcher(mem, &mockGovernor{}, analyzer, notifier)
	d.process(d.logger, p.ID)

	got, err := mem.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostingStatusSkipped, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Zero(t, notifier.count())
}

func TestDispatcher_ProcessFailureCountsAttempt(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	p := newQueuedPosting(t, mem, "https://example.com/broken")

	analyzer := &mockAnalyzer{AnalyzeFn: func(context.Context, *domain.Posting, domain.TaskType) (*analysis.Result, error) {
		return nil, analysis.ErrTransientFailure
	}}
	d := newTestDispatcher(mem, &mockGovernor{}, analyzer, nil)
	d.process(d.logger, p.ID)

	got, err := mem.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostingStatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts, "a call that reached the model consumes an attempt")
}

func TestDispatcher_GovernanceFastFailDoesNotCountAttempt(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	p := newQueuedPosting(t, mem, "https://example.com/blocked")

	gov := &mockGovernor{CallFn: func(context.Context, domain.TaskType, govern.CallFunc) (any, error) {
		return nil, govern.ErrBreakerOpen
	}}
	d := newTestDispatcher(mem, gov, &mockAnalyzer{}, nil)
	d.process(d.logger, p.ID)

	got, err := mem.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostingStatusFailed, got.Status)
	assert.Zero(t, got.Attempts, "a fast-failed call never reached the model")
}

func TestDispatcher_WorkersDrainQueue(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		p := newQueuedPosting(t, mem, "https://example.com/batch/"+string(rune('a'+i)))
		ids = append(ids, p.ID)
	}

	d := newTestDispatcher(mem, &mockGovernor{}, &mockAnalyzer{}, nil)
	d.queue.EnqueueBatch(ids)
	d.Start()
	defer d.Stop()

	require.Eventually(t, func() bool {
		return d.queue.Len() == 0 && d.queue.InFlightCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	for _, id := range ids {
		got, err := mem.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.PostingStatusAnalyzed, got.Status)
	}
}

// TestPipeline_GovernedPassWithRecovery runs five postings through a real
// governor with an analyzer that fails only the third. Four postings end
// analyzed, the third ends failed after consuming an attempt, and a
// subsequent recovery pass makes it eligible again.
func TestPipeline_GovernedPassWithRecovery(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	ctx := context.Background()

	var postings []*domain.Posting
	for i := 0; i < 5; i++ {
		p, err := domain.NewPosting("https://example.com/jobs/"+string(rune('1'+i)), "title", "body")
		require.NoError(t, err)
		p.Status = domain.PostingStatusQueued
		require.NoError(t, mem.Create(ctx, p))
		postings = append(postings, p)
	}
	failing := postings[2]

	limiter := govern.NewRateLimiter(govern.RateLimiterConfig{
		Capacity:     100,
		RefillPerSec: 100,
	}, testLogger())
	breaker := govern.NewBreakerController(govern.BreakerConfig{
		FailureRate: 0.9,
		MinCalls:    100,
		Window:      time.Minute,
	}, testLogger())
	queue := govern.NewProcessingQueue(testLogger())
	gov := govern.NewRequestGovernor(limiter, breaker, queue, govern.GovernorConfig{
		MaxConcurrentPerType: 10,
	}, testLogger())

	analyzer := &mockAnalyzer{AnalyzeFn: func(_ context.Context, p *domain.Posting, _ domain.TaskType) (*analysis.Result, error) {
		if p.ID == failing.ID {
			return nil, analysis.ErrTransientFailure
		}
		return &analysis.Result{Summary: "relevant", Score: 75}, nil
	}}

	d := NewDispatcher(mem, queue, gov, analyzer, nil, DispatcherConfig{
		WorkerCount:  2,
		PollInterval: time.Millisecond,
	}, testLogger())

	queue.EnqueueBatch(postingIDs(postings))
	d.Start()

	require.Eventually(t, func() bool {
		return queue.Len() == 0 && queue.InFlightCount() == 0
	}, 10*time.Second, 10*time.Millisecond)
	d.Stop()

	for i, p := range postings {
		got, err := mem.GetByID(ctx, p.ID)
		require.NoError(t, err)
		if p.ID == failing.ID {
			assert.Equal(t, domain.PostingStatusFailed, got.Status, "posting %d", i)
			assert.Equal(t, 1, got.Attempts)
		} else {
			assert.Equal(t, domain.PostingStatusAnalyzed, got.Status, "posting %d", i)
		}
	}

	o := NewRecoveryOrchestrator(mem, gov, breaker, queue, OrchestratorConfig{
		TickInterval: time.Hour,
	}, testLogger())
	require.NoError(t, o.recoveryAction(ctx))

	got, err := mem.GetByID(ctx, failing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostingStatusNew, got.Status, "failed posting becomes eligible again after recovery")
}
