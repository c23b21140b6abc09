package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/store"
)

// MockPostingStore is a function-field store.PostingStore for tests.
// Unset fields return zero values.
type MockPostingStore struct {
	CreateFn            func(ctx context.Context, posting *domain.Posting) error
	GetByIDFn           func(ctx context.Context, id uuid.UUID) (*domain.Posting, error)
	FindByStatusFn      func(ctx context.Context, status domain.PostingStatus, limit int) ([]*domain.Posting, error)
	FindRetryableFn     func(ctx context.Context, statuses []domain.PostingStatus, window time.Duration, limit int) ([]*domain.Posting, error)
	FindStaleFn         func(ctx context.Context, statuses []domain.PostingStatus, window time.Duration, limit int) ([]*domain.Posting, error)
	UpdateStatusFn      func(ctx context.Context, id uuid.UUID, status domain.PostingStatus) error
	UpdateStatusBatchFn func(ctx context.Context, ids []uuid.UUID, status domain.PostingStatus) (int, error)
	RecordAttemptFn     func(ctx context.Context, id uuid.UUID, status domain.PostingStatus) error
	CountByStatusFn     func(ctx context.Context, status domain.PostingStatus) (int, error)
	ExistsByURLFn       func(ctx context.Context, url string) (bool, error)
	WithTxFn            func(tx *sql.Tx) store.PostingStore
}

// Compile-time check
var _ store.PostingStore = (*MockPostingStore)(nil)

func (m *MockPostingStore) Create(ctx context.Context, posting *domain.Posting) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, posting)
	}
	return nil
}

func (m *MockPostingStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Posting, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, store.ErrPostingNotFound
}

func (m *MockPostingStore) FindByStatus(ctx context.Context, status domain.PostingStatus, limit int) ([]*domain.Posting, error) {
	if m.FindByStatusFn != nil {
		return m.FindByStatusFn(ctx, status, limit)
	}
	return nil, nil
}

func (m *MockPostingStore) FindRetryable(ctx context.Context, statuses []domain.PostingStatus, window time.Duration, limit int) ([]*domain.Posting, error) {
	if m.FindRetryableFn != nil {
		return m.FindRetryableFn(ctx, statuses, window, limit)
	}
	return nil, nil
}

func (m *MockPostingStore) FindStale(ctx context.Context, statuses []domain.PostingStatus, window time.Duration, limit int) ([]*domain.Posting, error) {
	if m.FindStaleFn != nil {
		return m.FindStaleFn(ctx, statuses, window, limit)
	}
	return nil, nil
}

func (m *MockPostingStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PostingStatus) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status)
	}
	return nil
}

func (m *MockPostingStore) UpdateStatusBatch(ctx context.Context, ids []uuid.UUID, status domain.PostingStatus) (int, error) {
	if m.UpdateStatusBatchFn != nil {
		return m.UpdateStatusBatchFn(ctx, ids, status)
	}
	return len(ids), nil
}

func (m *MockPostingStore) RecordAttempt(ctx context.Context, id uuid.UUID, status domain.PostingStatus) error {
	if m.RecordAttemptFn != nil {
		return m.RecordAttemptFn(ctx, id, status)
	}
	return nil
}

func (m *MockPostingStore) CountByStatus(ctx context.Context, status domain.PostingStatus) (int, error) {
	if m.CountByStatusFn != nil {
		return m.CountByStatusFn(ctx, status)
	}
	return 0, nil
}

func (m *MockPostingStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	if m.ExistsByURLFn != nil {
		return m.ExistsByURLFn(ctx, url)
	}
	return false, nil
}

func (m *MockPostingStore) WithTx(tx *sql.Tx) store.PostingStore {
	if m.WithTxFn != nil {
		return m.WithTxFn(tx)
	}
	return m
}
