package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/store"
)

type mockFetcher struct {
	FetchLatestFn func(ctx context.Context) ([]*domain.Posting, error)
}

func (m *mockFetcher) FetchLatest(ctx context.Context) ([]*domain.Posting, error) {
	if m.FetchLatestFn != nil {
		return m.FetchLatestFn(ctx)
	}
	return nil, nil
}

func TestFetchJob_StoresUnseenPostings(t *testing.T) {
	t.Parallel()

	mem, _ := newMemStore()
	seen, err := domain.NewPosting("https://example.com/seen", "seen", "body")
	require.NoError(t, err)
	require.NoError(t, mem.Create(context.Background(), seen))
	mem.ExistsByURLFn = func(ctx context.Context, url string) (bool, error) {
		return url == seen.URL, nil
	}

	fresh, err := domain.NewPosting("https://example.com/fresh", "fresh", "body")
	require.NoError(t, err)

	var created []*domain.Posting
	origCreate := mem.CreateFn
	mem.CreateFn = func(ctx context.Context, p *domain.Posting) error {
		created = append(created, p)
		return origCreate(ctx, p)
	}

	fetcher := &mockFetcher{FetchLatestFn: func(context.Context) ([]*domain.Posting, error) {
		return []*domain.Posting{seen, fresh}, nil
	}}

	j := NewFetchJob(mem, fetcher, time.Hour, testLogger())
	j.fetchOnce()

	require.Len(t, created, 1)
	assert.Equal(t, fresh.URL, created[0].URL)
}

func TestFetchJob_ToleratesDuplicateRace(t *testing.T) {
	t.Parallel()

	p, err := domain.NewPosting("https://example.com/raced", "raced", "body")
	require.NoError(t, err)

	mock := &MockPostingStore{
		CreateFn: func(context.Context, *domain.Posting) error {
			return store.ErrURLExists
		},
	}
	fetcher := &mockFetcher{FetchLatestFn: func(context.Context) ([]*domain.Posting, error) {
		return []*domain.Posting{p}, nil
	}}

	j := NewFetchJob(mock, fetcher, time.Hour, testLogger())
	j.fetchOnce()
}

func TestFetchJob_FetchErrorStoresNothing(t *testing.T) {
	t.Parallel()

	var created bool
	mock := &MockPostingStore{
		CreateFn: func(context.Context, *domain.Posting) error {
			created = true
			return nil
		},
	}
	fetcher := &mockFetcher{FetchLatestFn: func(context.Context) ([]*domain.Posting, error) {
		return nil, errors.New("upstream unavailable")
	}}

	j := NewFetchJob(mock, fetcher, time.Hour, testLogger())
	j.fetchOnce()

	assert.False(t, created)
}

func TestFetchJob_DisabledWithoutInterval(t *testing.T) {
	t.Parallel()

	j := NewFetchJob(&MockPostingStore{}, &mockFetcher{}, 0, testLogger())
	j.Start()
	j.Stop()
}
