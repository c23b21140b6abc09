package govern

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobsentry/api/internal/domain"
)

// loggingGovernor wraps a Governor and logs every governed call with its
// outcome and duration. Logging is a composable decorator applied at the
// governor boundary, not a side effect buried in call sites.
type loggingGovernor struct {
	next   Governor
	logger *slog.Logger
}

// WithLogging decorates g so every Call is logged on entry and exit.
func WithLogging(g Governor, logger *slog.Logger) Governor {
	return &loggingGovernor{next: g, logger: logger}
}

func (l *loggingGovernor) Call(
	ctx context.Context,
	taskType domain.TaskType,
	fn CallFunc,
) (any, error) {
	start := time.Now()
	l.logger.Debug("governed call starting",
		"task_type", taskType.String(),
		"active", l.next.ActiveCount(),
		"breaker_state", l.next.BreakerState().String())

	result, err := l.next.Call(ctx, taskType, fn)

	elapsed := time.Since(start)
	if err != nil {
		l.logger.Warn("governed call failed",
			"task_type", taskType.String(),
			"duration", elapsed,
			"breaker_state", l.next.BreakerState().String(),
			"error", err)
		return nil, err
	}

	l.logger.Info("governed call completed",
		"task_type", taskType.String(),
		"duration", elapsed)
	return result, nil
}

func (l *loggingGovernor) ActiveCount() int64 {
	return l.next.ActiveCount()
}

func (l *loggingGovernor) ActiveByType() map[string]int64 {
	return l.next.ActiveByType()
}

func (l *loggingGovernor) BreakerState() CircuitState {
	return l.next.BreakerState()
}

func (l *loggingGovernor) Snapshot() Snapshot {
	return l.next.Snapshot()
}
