// Package task contains the background pipeline that keeps the posting
// backlog moving: dispatcher workers draining the admission queue into
// governed LLM calls, the recovery orchestrator re-admitting failed work,
// the opportunistic validator revalidating skipped postings while the LLM
// is busy, the fetch loop pulling new postings, and the manual finalize
// path for stale items.
//
// Every loop is self-supervising: action errors are logged and the loop
// reschedules itself; only context cancellation stops it, with a bounded
// grace period for running children.
package task
