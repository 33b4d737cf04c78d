package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"solocron/internal/claim"
	logx "solocron/pkg/logx"
)

// drive runs one job's perpetual cycle. Each iteration handles exactly
// one occurrence: evaluate, open the claim, sleep until due, race for
// the lock, fire or skip, reschedule. The reference instant for the
// next evaluation is the occurrence just handled, not wall-clock now,
// so due times advance strictly and deterministically (the same way in
// every cooperating process).
func (s *Service) drive(ctx context.Context, st *jobState) error {
	job := st.job
	loc := job.Base.Location()
	ref := time.Now().In(loc)

	for {
		next := st.sched.Next(ref)
		if next.IsZero() {
			return fmt.Errorf("scheduler: job %q: no next occurrence after %s", job.ID, ref)
		}
		st.markNext(next)

		// Open the claim before the wait so the path exists by the time
		// any process wakes up for this occurrence.
		var h *claim.Handle
		if !job.SingleProcess {
			var err error
			h, err = s.dir.Open(job.ID, next)
			if err != nil {
				return err
			}
		}

		// A due time already in the past fires immediately: missed
		// wake-ups (suspended host, slow startup) are caught up, not
		// skipped.
		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			if h != nil {
				_ = h.Discard()
			}
			return ctx.Err()
		case <-timer.C:
		}

		won := true
		if h != nil {
			var err error
			won, err = h.TryAcquire()
			if err != nil {
				return err
			}
		}

		if won {
			s.fire(st, next)
			if h != nil {
				s.deferRelease(st.job.ID, h, next)
			}
		} else {
			// Another process claimed this occurrence. Not an error:
			// drop our handle and leave the winner's file alone.
			if err := h.Discard(); err != nil {
				return err
			}
			st.markSkipped(next)
			s.skipLog.Debug("occurrence claimed elsewhere; skipping",
				logx.String("job", job.ID), logx.Time("due", next))
			s.publish(EventSkipped, job.ID, next)
		}

		ref = next
	}
}

// fire invokes the callback inline on the driver goroutine. A panicking
// callback is contained here: it loses this occurrence's work but must
// not tear down the claim cleanup or the other jobs.
func (s *Service) fire(st *jobState, due time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job callback panicked",
				logx.String("job", st.job.ID),
				logx.Time("due", due),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()
	st.markFired(due)
	s.publish(EventFired, st.job.ID, due)
	s.log.Debug("firing job", logx.String("job", st.job.ID), logx.Time("due", due))
	st.job.Run()
}

// deferRelease holds the won claim for the release window, then unlocks
// and deletes it. The window gives slow racers time to observe the held
// lock; once the file is gone the occurrence is self-expired and no
// inter-process completion signal is needed. On shutdown the claim is
// released immediately rather than orphaned. A release failure means
// the exclusion invariant can't be trusted for future occurrences, so
// it propagates as a fatal service error.
func (s *Service) deferRelease(jobID string, h *claim.Handle, due time.Time) {
	s.sup.Go("release:"+jobID, func(ctx context.Context) error {
		timer := time.NewTimer(s.cfg.ReleaseWindow)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		if err := h.Release(); err != nil {
			return err
		}
		s.publish(EventReleased, jobID, due)
		return nil
	})
}
