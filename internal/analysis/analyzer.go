package analysis

import (
	"context"

	"github.com/jobsentry/api/internal/domain"
)

// Analyzer defines the interface for analyzing a job posting with an
// external LLM. This interface is the boundary between the processing
// pipeline and the LLM service; every invocation of it must go through the
// request governor.
type Analyzer interface {
	// Analyze runs the given task type against a posting and returns the
	// structured result. The implementation must honor ctx cancellation;
	// the governor cancels the context when the task type's deadline
	// expires.
	Analyze(ctx context.Context, posting *domain.Posting, taskType domain.TaskType) (*Result, error)
}

// Result is the structured outcome of one analysis call. The pipeline
// consumes the Score to decide between analyzed and skipped; the remaining
// fields are opaque payload passed on to notification.
type Result struct {
	// Summary is the model's condensed description of the posting.
	Summary string `json:"summary"`

	// Skills lists the skills the model extracted, when the task type
	// produces them.
	Skills []string `json:"skills,omitempty"`

	// Score is the model's relevance score from 0 to 100. Postings scoring
	// below the configured minimum are skipped.
	Score int `json:"score"`
}
