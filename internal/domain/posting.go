package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostingStatus represents the processing state of a job posting.
type PostingStatus string

// Possible posting status values
const (
	PostingStatusNew      PostingStatus = "new"
	PostingStatusQueued   PostingStatus = "queued"
	PostingStatusInFlight PostingStatus = "in_flight"
	PostingStatusAnalyzed PostingStatus = "analyzed"
	PostingStatusSkipped  PostingStatus = "skipped"
	PostingStatusFailed   PostingStatus = "failed"
	PostingStatusPurged   PostingStatus = "purged"
)

// Common validation errors for Posting
var (
	ErrEmptyPostingID      = errors.New("posting ID cannot be empty")
	ErrEmptyPostingURL     = errors.New("posting URL cannot be empty")
	ErrEmptyPostingTitle   = errors.New("posting title cannot be empty")
	ErrInvalidPostingState = errors.New("invalid posting status")
)

// Posting represents a job posting fetched from an external board and
// awaiting (or having completed) LLM analysis. The status field is the
// durable source of truth for the processing pipeline; the in-memory
// admission queue is rebuilt from it after a restart.
type Posting struct {
	ID            uuid.UUID     `json:"id"`
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	Body          string        `json:"body"`
	Status        PostingStatus `json:"status"`
	FetchedAt     time.Time     `json:"fetched_at"`
	LastAttemptAt *time.Time    `json:"last_attempt_at,omitempty"`
	Attempts      int           `json:"attempts"`
}

// NewPosting creates a new Posting with the given URL, title and body.
// It generates a new UUID, sets the status to new and stamps FetchedAt.
// Returns an error if validation fails.
func NewPosting(url, title, body string) (*Posting, error) {
	p := &Posting{
		ID:        uuid.New(),
		URL:       url,
		Title:     title,
		Body:      body,
		Status:    PostingStatusNew,
		FetchedAt: time.Now().UTC(),
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Validate checks if the Posting has valid data.
func (p *Posting) Validate() error {
	if p.ID == uuid.Nil {
		return ErrEmptyPostingID
	}

	if p.URL == "" {
		return ErrEmptyPostingURL
	}

	if p.Title == "" {
		return ErrEmptyPostingTitle
	}

	if !isValidPostingStatus(p.Status) {
		return ErrInvalidPostingState
	}

	return nil
}

// Terminal reports whether the posting has reached a state from which the
// pipeline will never move it automatically.
func (p *Posting) Terminal() bool {
	return p.Status == PostingStatusAnalyzed || p.Status == PostingStatusPurged
}

// isValidPostingStatus checks if the given status is a valid PostingStatus.
func isValidPostingStatus(status PostingStatus) bool {
	switch status {
	case PostingStatusNew, PostingStatusQueued, PostingStatusInFlight,
		PostingStatusAnalyzed, PostingStatusSkipped, PostingStatusFailed,
		PostingStatusPurged:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving the posting from its current status
// to next follows a defined edge of the lifecycle:
//
//	new -> queued -> in_flight -> analyzed
//	in_flight -> skipped | failed
//	skipped | failed -> new        (recovery / validator pass)
//	skipped | failed -> purged     (validator purge / manual finalize)
//
// new, queued and in_flight are never purged directly.
func (p *Posting) CanTransitionTo(next PostingStatus) bool {
	switch p.Status {
	case PostingStatusNew:
		return next == PostingStatusQueued
	case PostingStatusQueued:
		return next == PostingStatusInFlight || next == PostingStatusNew
	case PostingStatusInFlight:
		return next == PostingStatusAnalyzed ||
			next == PostingStatusSkipped ||
			next == PostingStatusFailed
	case PostingStatusSkipped, PostingStatusFailed:
		return next == PostingStatusNew || next == PostingStatusPurged
	default:
		return false
	}
}
