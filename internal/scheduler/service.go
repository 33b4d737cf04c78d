package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solocron/internal/claim"
	"solocron/internal/eventbus"
	"solocron/internal/runtime/supervisor"
	logx "solocron/pkg/logx"
)

// DefaultReleaseWindow bounds how long a winning process holds an
// occurrence claim after firing. It should comfortably exceed the
// expected callback runtime; it is not an enforced timeout.
const DefaultReleaseWindow = 10 * time.Second

// Event types published on the bus, one per decided occurrence.
const (
	EventFired    = "occurrence.fired"
	EventSkipped  = "occurrence.skipped"
	EventReleased = "occurrence.released"
)

// Occurrence is the event payload: one (job, due time) firing.
type Occurrence struct {
	JobID string    `json:"job_id"`
	Due   time.Time `json:"due"`
}

type Config struct {
	// ReleaseWindow overrides DefaultReleaseWindow when > 0.
	ReleaseWindow time.Duration
}

// Service owns the registered job table and the driver goroutines.
type Service struct {
	cfg Config
	log logx.Logger
	// skipLog rate-limits the per-occurrence contention lines: with a
	// dense schedule and many workers, every loser would log every minute.
	skipLog logx.Logger

	dir *claim.Dir
	bus eventbus.Bus

	mu   sync.Mutex
	jobs []*jobState
	byID map[string]*jobState
	sup  *supervisor.Supervisor
}

// New creates a stopped service. dir carries the claim directory shared
// with the other cooperating processes; it may be nil only if every
// registered job is SingleProcess.
func New(cfg Config, dir *claim.Dir, bus eventbus.Bus, log logx.Logger) *Service {
	if cfg.ReleaseWindow <= 0 {
		cfg.ReleaseWindow = DefaultReleaseWindow
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		skipLog: log.Sampled(1),
		dir:     dir,
		bus:     bus,
		byID:    map[string]*jobState{},
	}
}

// Register resolves and validates a registration payload. It is
// all-or-nothing: any invalid entry rejects the whole payload and the
// service keeps its previous table. Registration is only possible
// before Start; the job table is immutable while running.
func (s *Service) Register(reg Registration) error {
	jobs, err := reg.normalize()
	if err != nil {
		return err
	}

	states := make([]*jobState, 0, len(jobs))
	for _, job := range jobs {
		sched, err := parseCrontab(job.Crontab)
		if err != nil {
			return fmt.Errorf("job %q: %w", job.ID, err)
		}
		states = append(states, &jobState{job: job, sched: sched})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return ErrAlreadyStarted
	}
	for _, st := range states {
		if _, dup := s.byID[st.job.ID]; dup {
			return fmt.Errorf("%w: duplicate job %q", ErrBadRegistration, st.job.ID)
		}
	}
	for _, st := range states {
		s.byID[st.job.ID] = st
		s.jobs = append(s.jobs, st)
	}
	return nil
}

// Start launches one driver goroutine per registered job. The first
// fatal driver error (claim open/release failure) cancels every driver;
// losing a claim race is not an error and never stops anything.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return ErrAlreadyStarted
	}
	if s.dir == nil {
		for _, st := range s.jobs {
			if !st.job.SingleProcess {
				return fmt.Errorf("scheduler: job %q needs a claim directory", st.job.ID)
			}
		}
	}

	s.sup = supervisor.New(ctx,
		supervisor.WithLogger(s.log),
		supervisor.WithCancelOnError(true),
	)
	for _, st := range s.jobs {
		st := st
		s.sup.Go("drive:"+st.job.ID, func(ctx context.Context) error {
			return s.drive(ctx, st)
		})
		s.log.Info("job scheduled",
			logx.String("job", st.job.ID),
			logx.String("crontab", st.job.Crontab),
			logx.String("base", st.job.Base.String()),
			logx.Bool("single_process", st.job.SingleProcess))
	}
	s.log.Info("scheduler started", logx.Int("jobs", len(s.jobs)), logx.Duration("release_window", s.cfg.ReleaseWindow))
	return nil
}

// Stop cancels all drivers and waits for them (and any pending claim
// cleanups, which release early on shutdown) to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	s.log.Info("scheduler stopped")
	return err
}

// Wait blocks until every driver has exited and returns the first fatal
// error, if any.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Wait(ctx)
}

// Done is closed when the driver context is cancelled (fatal error or Stop).
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error observed, if any.
func (s *Service) Err() error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Err()
}

func (s *Service) publish(typ string, jobID string, due time.Time) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: Occurrence{JobID: jobID, Due: due}})
}
