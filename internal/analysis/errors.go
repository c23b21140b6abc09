package analysis

import "errors"

// Common errors returned by analyzer implementations
var (
	// ErrAnalysisFailed is returned when posting analysis fails for any
	// general reason
	ErrAnalysisFailed = errors.New("failed to analyze posting")

	// ErrInvalidResponse is returned when the LLM response cannot be
	// parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to
	// safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might
	// resolve on retry
	ErrTransientFailure = errors.New("transient error during posting analysis")

	// ErrInvalidConfig is returned when the analyzer configuration is invalid
	ErrInvalidConfig = errors.New("invalid analyzer configuration")
)
