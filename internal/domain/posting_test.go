package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosting(t *testing.T) {
	t.Parallel()

	t.Run("valid posting", func(t *testing.T) {
		t.Parallel()

		p, err := NewPosting("https://example.com/jobs/42", "Backend Engineer", "We need a Go person")
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, p.ID)
		assert.Equal(t, PostingStatusNew, p.Status)
		assert.False(t, p.FetchedAt.IsZero())
		assert.Zero(t, p.Attempts)
		assert.Nil(t, p.LastAttemptAt)
	})

	t.Run("empty URL", func(t *testing.T) {
		t.Parallel()

		_, err := NewPosting("", "Backend Engineer", "body")
		assert.ErrorIs(t, err, ErrEmptyPostingURL)
	})

	t.Run("empty title", func(t *testing.T) {
		t.Parallel()

		_, err := NewPosting("https://example.com/jobs/42", "", "body")
		assert.ErrorIs(t, err, ErrEmptyPostingTitle)
	})
}

func TestPosting_Validate_Status(t *testing.T) {
	t.Parallel()

	p, err := NewPosting("https://example.com/jobs/42", "Backend Engineer", "body")
	require.NoError(t, err)

	p.Status = PostingStatus("bogus")
	assert.ErrorIs(t, p.Validate(), ErrInvalidPostingState)
}

func TestPosting_CanTransitionTo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		from    PostingStatus
		to      PostingStatus
		allowed bool
	}{
		{"admit", PostingStatusNew, PostingStatusQueued, true},
		{"dispatch", PostingStatusQueued, PostingStatusInFlight, true},
		{"success", PostingStatusInFlight, PostingStatusAnalyzed, true},
		{"low score", PostingStatusInFlight, PostingStatusSkipped, true},
		{"call failure", PostingStatusInFlight, PostingStatusFailed, true},
		{"recover skipped", PostingStatusSkipped, PostingStatusNew, true},
		{"recover failed", PostingStatusFailed, PostingStatusNew, true},
		{"purge skipped", PostingStatusSkipped, PostingStatusPurged, true},
		{"purge failed", PostingStatusFailed, PostingStatusPurged, true},
		{"never purge new", PostingStatusNew, PostingStatusPurged, false},
		{"never purge queued", PostingStatusQueued, PostingStatusPurged, false},
		{"never purge in flight", PostingStatusInFlight, PostingStatusPurged, false},
		{"analyzed is terminal", PostingStatusAnalyzed, PostingStatusNew, false},
		{"purged is terminal", PostingStatusPurged, PostingStatusNew, false},
		{"no skipping queue", PostingStatusNew, PostingStatusInFlight, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := &Posting{Status: tc.from}
			assert.Equal(t, tc.allowed, p.CanTransitionTo(tc.to))
		})
	}
}

func TestTaskType_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "primary_analysis", TaskTypePrimaryAnalysis.String())
	assert.Equal(t, "skill_extraction", TaskTypeSkillExtraction.String())
	assert.Equal(t, "log_analysis", TaskTypeLogAnalysis.String())
	assert.Equal(t, "other", TaskTypeOther.String())
	assert.Equal(t, "unknown", TaskType(99).String())
}

func TestTaskType_Valid(t *testing.T) {
	t.Parallel()

	for tt := TaskTypePrimaryAnalysis; tt < NumTaskTypes; tt++ {
		assert.True(t, tt.Valid(), tt.String())
	}
	assert.False(t, TaskType(-1).Valid())
	assert.False(t, NumTaskTypes.Valid())
}
