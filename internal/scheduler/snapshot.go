package scheduler

import (
	"time"

	"solocron/internal/runtime/supervisor"
)

// JobStatus is a point-in-time view of one job's drive loop.
type JobStatus struct {
	ID            string    `json:"id"`
	Crontab       string    `json:"crontab"`
	Base          string    `json:"base"`
	SingleProcess bool      `json:"single_process"`
	Fired         uint64    `json:"fired"`
	Skipped       uint64    `json:"skipped"`
	LastDue       time.Time `json:"last_due,omitzero"`
	NextDue       time.Time `json:"next_due,omitzero"`
}

// Snapshot is observability output only; counters are best-effort and
// "fired" counts occurrences this process won, not cluster-wide firings.
type Snapshot struct {
	ClaimDir   string              `json:"claim_dir,omitempty"`
	Jobs       []JobStatus         `json:"jobs"`
	Goroutines supervisor.Counters `json:"goroutines"`
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	states := make([]*jobState, len(s.jobs))
	copy(states, s.jobs)
	sup := s.sup
	s.mu.Unlock()

	snap := Snapshot{}
	if s.dir != nil {
		snap.ClaimDir = s.dir.Path()
	}
	if sup != nil {
		snap.Goroutines = sup.CountersSnapshot()
	}

	snap.Jobs = make([]JobStatus, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		snap.Jobs = append(snap.Jobs, JobStatus{
			ID:            st.job.ID,
			Crontab:       st.job.Crontab,
			Base:          st.job.Base.String(),
			SingleProcess: st.job.SingleProcess,
			Fired:         st.fired,
			Skipped:       st.skipped,
			LastDue:       st.lastDue,
			NextDue:       st.nextDue,
		})
		st.mu.Unlock()
	}
	return snap
}
