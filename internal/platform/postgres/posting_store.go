package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/platform/logger"
	"github.com/jobsentry/api/internal/store"
)

// uniqueViolationCode is the PostgreSQL error code for unique constraint violations.
const uniqueViolationCode = "23505"

// PostgresPostingStore implements the store.PostingStore interface using
// PostgreSQL through the database/sql DBTX abstraction.
type PostgresPostingStore struct {
	db store.DBTX
}

// NewPostgresPostingStore creates a new PostgresPostingStore.
func NewPostgresPostingStore(db store.DBTX) *PostgresPostingStore {
	return &PostgresPostingStore{db: db}
}

// WithTx returns a new store instance bound to the provided transaction.
func (s *PostgresPostingStore) WithTx(tx *sql.Tx) store.PostingStore {
	return &PostgresPostingStore{db: tx}
}

// Create saves a new posting to the database.
func (s *PostgresPostingStore) Create(ctx context.Context, posting *domain.Posting) error {
	log := logger.FromContext(ctx)

	if err := posting.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO postings (id, url, title, body, status, fetched_at, last_attempt_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		posting.ID,
		posting.URL,
		posting.Title,
		posting.Body,
		posting.Status,
		posting.FetchedAt,
		posting.LastAttemptAt,
		posting.Attempts,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrURLExists
		}
		log.Error("failed to save posting",
			"posting_id", posting.ID,
			"error", err)
		return store.NewStoreError("posting", "create", "failed to save posting", err)
	}

	return nil
}

// GetByID retrieves a posting by its unique ID.
func (s *PostgresPostingStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Posting, error) {
	query := `
		SELECT id, url, title, body, status, fetched_at, last_attempt_at, attempts
		FROM postings
		WHERE id = $1
	`

	posting, err := scanPosting(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPostingNotFound
		}
		return nil, store.NewStoreError("posting", "get", "failed to get posting", err)
	}

	return posting, nil
}

// FindByStatus retrieves up to limit postings with the given status, oldest
// first.
func (s *PostgresPostingStore) FindByStatus(
	ctx context.Context,
	status domain.PostingStatus,
	limit int,
) ([]*domain.Posting, error) {
	query := `
		SELECT id, url, title, body, status, fetched_at, last_attempt_at, attempts
		FROM postings
		WHERE status = $1
		ORDER BY fetched_at ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, store.NewStoreError("posting", "find", "failed to query by status", err)
	}
	defer func() { _ = rows.Close() }()

	return collectPostings(rows)
}

// FindRetryable retrieves postings in the given statuses whose last
// activity falls within the retry window.
func (s *PostgresPostingStore) FindRetryable(
	ctx context.Context,
	statuses []domain.PostingStatus,
	window time.Duration,
	limit int,
) ([]*domain.Posting, error) {
	return s.findByActivity(ctx, statuses, window, limit, true)
}

// FindStale retrieves postings in the given statuses whose last activity is
// older than the window. Only the manual finalize path uses this.
func (s *PostgresPostingStore) FindStale(
	ctx context.Context,
	statuses []domain.PostingStatus,
	window time.Duration,
	limit int,
) ([]*domain.Posting, error) {
	return s.findByActivity(ctx, statuses, window, limit, false)
}

// findByActivity is the shared query behind FindRetryable and FindStale.
// Last activity is last_attempt_at when set, fetched_at otherwise.
func (s *PostgresPostingStore) findByActivity(
	ctx context.Context,
	statuses []domain.PostingStatus,
	window time.Duration,
	limit int,
	within bool,
) ([]*domain.Posting, error) {
	if len(statuses) == 0 {
		return []*domain.Posting{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+2)
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, status)
	}

	op := "<"
	if within {
		op = ">="
	}

	cutoff := time.Now().UTC().Add(-window)
	args = append(args, cutoff, limit)

	query := fmt.Sprintf(`
		SELECT id, url, title, body, status, fetched_at, last_attempt_at, attempts
		FROM postings
		WHERE status IN (%s)
		  AND COALESCE(last_attempt_at, fetched_at) %s $%d
		ORDER BY fetched_at ASC
		LIMIT $%d
	`, strings.Join(placeholders, ", "), op, len(statuses)+1, len(statuses)+2)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("posting", "find", "failed to query by activity", err)
	}
	defer func() { _ = rows.Close() }()

	return collectPostings(rows)
}

// UpdateStatus updates the status of an existing posting.
func (s *PostgresPostingStore) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.PostingStatus,
) error {
	query := `UPDATE postings SET status = $1 WHERE id = $2`

	result, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return store.NewStoreError("posting", "update", "failed to update status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("posting", "update", "failed to get rows affected", err)
	}
	if affected == 0 {
		return store.ErrPostingNotFound
	}

	return nil
}

// UpdateStatusBatch updates the status of every listed posting.
func (s *PostgresPostingStore) UpdateStatusBatch(
	ctx context.Context,
	ids []uuid.UUID,
	status domain.PostingStatus,
) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, status)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(
		`UPDATE postings SET status = $1 WHERE id IN (%s)`,
		strings.Join(placeholders, ", "),
	)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, store.NewStoreError("posting", "update", "failed to batch update status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, store.NewStoreError("posting", "update", "failed to get rows affected", err)
	}

	return int(affected), nil
}

// RecordAttempt sets the status, bumps the attempt counter and stamps
// last_attempt_at.
func (s *PostgresPostingStore) RecordAttempt(
	ctx context.Context,
	id uuid.UUID,
	status domain.PostingStatus,
) error {
	query := `
		UPDATE postings
		SET status = $1, attempts = attempts + 1, last_attempt_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return store.NewStoreError("posting", "update", "failed to record attempt", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("posting", "update", "failed to get rows affected", err)
	}
	if affected == 0 {
		return store.ErrPostingNotFound
	}

	return nil
}

// CountByStatus returns the number of postings with the given status.
func (s *PostgresPostingStore) CountByStatus(
	ctx context.Context,
	status domain.PostingStatus,
) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM postings WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, store.NewStoreError("posting", "count", "failed to count by status", err)
	}
	return count, nil
}

// ExistsByURL reports whether a posting with the given URL is stored.
func (s *PostgresPostingStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM postings WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, store.NewStoreError("posting", "exists", "failed to check URL", err)
	}
	return exists, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanPosting.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPosting scans one posting row.
func scanPosting(row rowScanner) (*domain.Posting, error) {
	var p domain.Posting
	var lastAttempt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.URL,
		&p.Title,
		&p.Body,
		&p.Status,
		&p.FetchedAt,
		&lastAttempt,
		&p.Attempts,
	)
	if err != nil {
		return nil, err
	}

	if lastAttempt.Valid {
		t := lastAttempt.Time
		p.LastAttemptAt = &t
	}

	return &p, nil
}

// collectPostings drains rows into a slice.
func collectPostings(rows *sql.Rows) ([]*domain.Posting, error) {
	postings := []*domain.Posting{}
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, store.NewStoreError("posting", "scan", "failed to scan posting", err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("posting", "scan", "row iteration failed", err)
	}
	return postings, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
