package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/govern"
)

func TestFinalizer_PurgesStalePostings(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	ctx := context.Background()

	stale, err := domain.NewPosting("https://example.com/stale", "stale", "body")
	require.NoError(t, err)
	stale.Status = domain.PostingStatusFailed
	require.NoError(t, mem.Create(ctx, stale))

	// The in-memory store has no age filtering; route FindStale to the
	// failed posting directly and assert the purge path.
	mem.FindStaleFn = func(ctx context.Context, statuses []domain.PostingStatus, window time.Duration, limit int) ([]*domain.Posting, error) {
		assert.ElementsMatch(t, []domain.PostingStatus{domain.PostingStatusFailed, domain.PostingStatusSkipped}, statuses)
		return []*domain.Posting{stale}, nil
	}

	f := NewFinalizer(mem, 48*time.Hour, testLogger())
	purged, err := f.Finalize(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	got, err := mem.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostingStatusPurged, got.Status)
}

func TestFinalizer_NothingStale(t *testing.T) {
	t.Parallel()

	f := NewFinalizer(&MockPostingStore{}, 48*time.Hour, testLogger())
	purged, err := f.Finalize(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestFinalizer_PropagatesStoreError(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection lost")
	mock := &MockPostingStore{
		FindStaleFn: func(context.Context, []domain.PostingStatus, time.Duration, int) ([]*domain.Posting, error) {
			return nil, storeErr
		},
	}

	f := NewFinalizer(mock, 48*time.Hour, testLogger())
	_, err := f.Finalize(context.Background(), 100)
	assert.ErrorIs(t, err, storeErr)
}

// Purged postings never re-enter the pipeline: recovery queries retryable
// statuses only, and the queue never sees a purged id again.
func TestFinalizer_PurgedPostingsStayPurged(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	ctx := context.Background()

	p, err := domain.NewPosting("https://example.com/done", "done", "body")
	require.NoError(t, err)
	p.Status = domain.PostingStatusPurged
	require.NoError(t, mem.Create(ctx, p))

	o := NewRecoveryOrchestrator(mem, &mockGovernor{}, nil, govern.NewProcessingQueue(testLogger()), OrchestratorConfig{}, testLogger())
	require.NoError(t, o.recoveryAction(ctx))
	require.NoError(t, o.admissionAction(ctx))

	got, err := mem.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostingStatusPurged, got.Status)
	assert.Zero(t, o.queue.Len())
}
