package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/store"
)

// Fetcher pulls new postings from an upstream source. Implementations
// must not use the governed LLM.
type Fetcher interface {
	FetchLatest(ctx context.Context) ([]*domain.Posting, error)
}

// FetchJob periodically pulls postings from a Fetcher and persists the
// ones not seen before. A zero interval disables the job.
type FetchJob struct {
	store    store.PostingStore
	fetcher  Fetcher
	interval time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewFetchJob creates a FetchJob.
func NewFetchJob(postingStore store.PostingStore, fetcher Fetcher, interval time.Duration, logger *slog.Logger) *FetchJob {
	return &FetchJob{
		store:    postingStore,
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the fetch loop. It is a no-op when the interval is zero
// or no fetcher is configured.
func (j *FetchJob) Start() {
	if j.interval <= 0 || j.fetcher == nil {
		j.logger.Info("fetch job disabled")
		return
	}

	j.logger.Info("starting fetch job", "interval", j.interval)
	j.wg.Add(1)
	go j.run()
}

// Stop signals the loop and waits for it to exit.
func (j *FetchJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *FetchJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.fetchOnce()
		}
	}
}

// fetchOnce pulls one batch and stores the postings whose URL is unseen.
func (j *FetchJob) fetchOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	postings, err := j.fetcher.FetchLatest(ctx)
	if err != nil {
		j.logger.Error("fetch failed", "error", err)
		return
	}

	var created int
	for _, p := range postings {
		exists, err := j.store.ExistsByURL(ctx, p.URL)
		if err != nil {
			j.logger.Error("failed to check posting URL", "url", p.URL, "error", err)
			continue
		}
		if exists {
			continue
		}

		if err := j.store.Create(ctx, p); err != nil {
			if store.IsDuplicateError(err) {
				// Lost a race with a concurrent insert; not an error.
				continue
			}
			j.logger.Error("failed to store fetched posting", "url", p.URL, "error", err)
			continue
		}
		created++
	}

	if created > 0 {
		j.logger.Info("stored fetched postings", "fetched", len(postings), "created", created)
	}
}
