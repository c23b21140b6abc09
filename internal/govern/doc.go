// Package govern implements the governance layer that mediates every call
// to the external LLM: a token-bucket rate limiter, a circuit breaker with
// forced-transition policies, a request governor with per-task-type
// concurrency accounting and deadlines, and the dedup admission queue
// feeding governed calls.
//
// The overall/per-type active counters and the breaker state are the only
// data mutated from multiple concurrent paths; both are lock-free atomics,
// and no other component may introduce a lock around the same data. The
// ProcessingQueue guards its own bookkeeping with an internal mutex that is
// never held across a suspension point.
package govern
