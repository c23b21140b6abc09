package govern

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ProcessingQueue is the in-memory FIFO admission set of posting ids
// awaiting a governed call. An id is a member of either the queue or the
// in-flight set, never both: EnqueueBatch refuses ids that are queued or in
// flight, Dequeue atomically moves ids from queued to in-flight, and
// MarkDone releases them once the governed call has completed.
//
// The queue is deliberately not persistent. After a restart it is empty and
// the recovery orchestrator repopulates it from posting status in the
// store, which is the durable source of truth.
type ProcessingQueue struct {
	mu       sync.Mutex
	order    []uuid.UUID
	queued   map[uuid.UUID]struct{}
	inFlight map[uuid.UUID]struct{}
	logger   *slog.Logger
}

// NewProcessingQueue creates an empty ProcessingQueue.
func NewProcessingQueue(logger *slog.Logger) *ProcessingQueue {
	return &ProcessingQueue{
		queued:   make(map[uuid.UUID]struct{}),
		inFlight: make(map[uuid.UUID]struct{}),
		logger:   logger,
	}
}

// EnqueueBatch adds the ids that are neither queued nor in flight,
// preserving the given order, and returns how many were admitted.
func (q *ProcessingQueue) EnqueueBatch(ids []uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	admitted := 0
	for _, id := range ids {
		if _, ok := q.queued[id]; ok {
			continue
		}
		if _, ok := q.inFlight[id]; ok {
			continue
		}
		q.queued[id] = struct{}{}
		q.order = append(q.order, id)
		admitted++
	}

	if admitted > 0 {
		q.logger.Debug("postings admitted to processing queue",
			"admitted", admitted,
			"offered", len(ids),
			"depth", len(q.order))
	}

	return admitted
}

// Dequeue removes up to max ids in insertion order and marks them in
// flight. Returns an empty slice when the queue is empty or max <= 0.
func (q *ProcessingQueue) Dequeue(max int) []uuid.UUID {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := max
	if n > len(q.order) {
		n = len(q.order)
	}
	if n == 0 {
		return nil
	}

	out := make([]uuid.UUID, n)
	copy(out, q.order[:n])
	q.order = q.order[n:]

	for _, id := range out {
		delete(q.queued, id)
		q.inFlight[id] = struct{}{}
	}

	return out
}

// MarkDone releases an id from the in-flight set, making it admissible
// again. Safe to call for ids that are not in flight.
func (q *ProcessingQueue) MarkDone(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, id)
}

// Len returns the number of ids waiting in the queue.
func (q *ProcessingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// InFlightCount returns the number of ids currently dispatched.
func (q *ProcessingQueue) InFlightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}
