// Package scheduler drives recurring jobs inside a long-running host
// process. Each registered job gets one supervised driver goroutine
// running a perpetual cycle: evaluate the next due time from the job's
// cron expression, sleep until it, race the other cooperating processes
// for the occurrence's claim, fire the callback if this process won, and
// loop. The cycle only ends when the host shuts down.
//
// # Cross-process single execution
//
// Identical host processes (a preforked farm) all compute the same due
// times and all wake up together. The claim package arbitrates: exactly
// one process acquires the advisory lock on the occurrence's claim file
// and fires; the rest skip silently. Losing the race is steady-state
// behavior, not an error. Jobs registered with SingleProcess bypass the
// claim layer entirely and fire in every process.
//
// # Callback contract
//
// A job's Run executes synchronously on that job's driver goroutine. A
// slow Run delays only that job's subsequent occurrences and the
// deferred claim cleanup, but it is still expected to finish well
// inside the release window, since the claim file is removed when the
// window elapses regardless. There is no enforced timeout.
//
// # Failure policy
//
// Bad cron expressions and malformed registrations fail at Register
// time, before any timer exists. Claim open/release failures at runtime
// are fatal to the whole service: correctness of the single-execution
// guarantee is worth more than availability, so the scheduler halts
// loudly instead of risking duplicate or silently dead jobs.
package scheduler
