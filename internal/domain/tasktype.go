package domain

// TaskType categorizes governed LLM calls. Each type carries its own call
// deadline and concurrency accounting in the request governor.
type TaskType int

// Task type values
const (
	TaskTypePrimaryAnalysis TaskType = iota
	TaskTypeSkillExtraction
	TaskTypeLogAnalysis
	TaskTypeOther

	// NumTaskTypes is the number of distinct task types, usable as an
	// array bound for per-type counters.
	NumTaskTypes
)

// String returns the task type name used in logs and the status snapshot.
func (t TaskType) String() string {
	switch t {
	case TaskTypePrimaryAnalysis:
		return "primary_analysis"
	case TaskTypeSkillExtraction:
		return "skill_extraction"
	case TaskTypeLogAnalysis:
		return "log_analysis"
	case TaskTypeOther:
		return "other"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the defined task types.
func (t TaskType) Valid() bool {
	return t >= TaskTypePrimaryAnalysis && t < NumTaskTypes
}
