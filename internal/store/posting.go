package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jobsentry/api/internal/domain"
)

// PostingStore defines the interface for posting data persistence.
// The posting status column is the durable source of truth for the
// processing pipeline; the in-memory admission queue is rebuilt from it.
// Per-posting update atomicity is assumed; the pipeline never requires
// multi-posting transactions.
type PostingStore interface {
	// Create saves a new posting to the store.
	// Returns ErrURLExists if a posting with the same URL already exists.
	Create(ctx context.Context, posting *domain.Posting) error

	// GetByID retrieves a posting by its unique ID.
	// Returns ErrPostingNotFound if the posting does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Posting, error)

	// FindByStatus retrieves up to limit postings with the specified status,
	// oldest first. Returns an empty slice if none match.
	FindByStatus(ctx context.Context, status domain.PostingStatus, limit int) ([]*domain.Posting, error)

	// FindRetryable retrieves up to limit postings whose status is one of
	// the given statuses and whose last attempt (or fetch, if never
	// attempted) falls within the given window. Postings older than the
	// window are excluded; they are only reachable via FindStale.
	FindRetryable(
		ctx context.Context,
		statuses []domain.PostingStatus,
		window time.Duration,
		limit int,
	) ([]*domain.Posting, error)

	// FindStale retrieves up to limit postings whose status is one of the
	// given statuses and whose last activity is older than the window.
	// Used exclusively by the manual finalize path.
	FindStale(
		ctx context.Context,
		statuses []domain.PostingStatus,
		window time.Duration,
		limit int,
	) ([]*domain.Posting, error)

	// UpdateStatus updates the status of an existing posting.
	// Returns ErrPostingNotFound if the posting does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PostingStatus) error

	// UpdateStatusBatch updates the status of every listed posting and
	// returns the number of rows changed. Missing ids are skipped silently.
	UpdateStatusBatch(ctx context.Context, ids []uuid.UUID, status domain.PostingStatus) (int, error)

	// RecordAttempt sets the posting's status, increments its attempt
	// counter and stamps last_attempt_at. Called on governed-call completion.
	RecordAttempt(ctx context.Context, id uuid.UUID, status domain.PostingStatus) error

	// CountByStatus returns the number of postings with the given status.
	CountByStatus(ctx context.Context, status domain.PostingStatus) (int, error)

	// ExistsByURL reports whether a posting with the given URL is already
	// stored. Used by the fetch loop for dedup.
	ExistsByURL(ctx context.Context, url string) (bool, error)

	// WithTx returns a new PostingStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) PostingStore
}
