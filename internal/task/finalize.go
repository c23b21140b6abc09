package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/store"
)

// Finalizer purges postings that aged out of the retry window. Purging is
// never automatic; it runs only when invoked through the admin surface.
type Finalizer struct {
	store  store.PostingStore
	window time.Duration
	logger *slog.Logger
}

// NewFinalizer creates a Finalizer using the given retry window.
func NewFinalizer(postingStore store.PostingStore, window time.Duration, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		store:  postingStore,
		window: window,
		logger: logger,
	}
}

// Finalize moves failed and skipped postings whose last activity is older
// than the retry window to Purged. It returns the number of postings
// purged. limit bounds one invocation; callers re-invoke to drain.
func (f *Finalizer) Finalize(ctx context.Context, limit int) (int, error) {
	stale, err := f.store.FindStale(ctx,
		[]domain.PostingStatus{domain.PostingStatusFailed, domain.PostingStatusSkipped},
		f.window,
		limit,
	)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	purged, err := f.store.UpdateStatusBatch(ctx, postingIDs(stale), domain.PostingStatusPurged)
	if err != nil {
		return purged, err
	}

	f.logger.Info("purged stale postings", "count", purged, "window", f.window)
	return purged, nil
}
