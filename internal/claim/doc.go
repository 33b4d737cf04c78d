// Package claim implements the cross-process exclusion layer of the
// scheduler: a filesystem-addressed, non-blocking, exclusive advisory
// lock scoped to one job occurrence.
//
// Every cooperating process derives the identical path for the same
// (job, due time) pair, so the flock(2) lock on that file elects exactly
// one winner per occurrence. The lock, not the file's existence, is
// authoritative: the kernel releases advisory locks when the owning
// process dies, so a crashed winner's claim is observably free to the
// next acquirer even while the stale file lingers.
//
// The only consistency domain is "processes on the same host sharing the
// same claim root" (a preforked server farm); there is no network
// coordination and none is needed.
package claim
