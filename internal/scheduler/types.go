package scheduler

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sentinel errors for registration failures. All of them surface before
// any timer is scheduled; a failed Register leaves the service unchanged.
var (
	ErrBadSchedule     = errors.New("scheduler: invalid cron expression")
	ErrBadRegistration = errors.New("scheduler: malformed registration")
	ErrAlreadyStarted  = errors.New("scheduler: already started")
)

// TimeBase selects the timezone a job's cron expression is evaluated in.
type TimeBase int

const (
	BaseLocal TimeBase = iota
	BaseUTC
)

func (b TimeBase) Location() *time.Location {
	if b == BaseUTC {
		return time.UTC
	}
	return time.Local
}

func (b TimeBase) String() string {
	if b == BaseUTC {
		return "utc"
	}
	return "local"
}

// ParseTimeBase maps the config spelling onto a TimeBase. Empty means local.
func ParseTimeBase(s string) (TimeBase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return BaseLocal, nil
	case "utc":
		return BaseUTC, nil
	default:
		return BaseLocal, fmt.Errorf("%w: unknown time base %q", ErrBadRegistration, s)
	}
}

// Job is a normalized job definition. Immutable after registration; the
// driver owns it for the process lifetime. There is no way to deregister
// a single job short of stopping the whole service.
type Job struct {
	// ID is unique among the process's registered jobs and namespaces
	// the job's claim files, so every cooperating process must derive
	// the same ID for the same job.
	ID      string
	Crontab string
	Base    TimeBase
	// Run is the zero-argument callback fired once per won occurrence.
	// See the package doc for the blocking contract.
	Run func()
	// SingleProcess bypasses the cross-process claim: every process
	// running this table fires the job on every occurrence.
	SingleProcess bool
}

// JobSpec is one entry of a table registration.
type JobSpec struct {
	Crontab string
	Run     func()
	Base    TimeBase
	// AllProc maps to Job.SingleProcess: fire in every process.
	AllProc bool
}

// SingleJob registers one anonymous (schedule, callback) pair. The
// identifier is synthesized deterministically from the expression so
// that identical preforked processes still agree on claim paths.
type SingleJob struct {
	Crontab string
	Run     func()
	// PinID overrides the synthesized identifier. Intended for tests
	// that need a predictable claim path.
	PinID string
}

// Registration is the tagged registration payload: exactly one of the
// variants must be set.
type Registration struct {
	Single *SingleJob
	Table  map[string]JobSpec
}

// normalize resolves the registration variant into a flat job list,
// failing on any shape problem. Table order is made deterministic so
// identical processes synthesize identical state.
func (r Registration) normalize() ([]Job, error) {
	switch {
	case r.Single != nil && r.Table != nil:
		return nil, fmt.Errorf("%w: both single and table set", ErrBadRegistration)
	case r.Single != nil:
		s := r.Single
		if strings.TrimSpace(s.Crontab) == "" {
			return nil, fmt.Errorf("%w: crontab required", ErrBadRegistration)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("%w: nil callback", ErrBadRegistration)
		}
		id := s.PinID
		if id == "" {
			id = syntheticID(s.Crontab)
		}
		return []Job{{ID: id, Crontab: s.Crontab, Run: s.Run}}, nil
	case r.Table != nil:
		if len(r.Table) == 0 {
			return nil, fmt.Errorf("%w: empty job table", ErrBadRegistration)
		}
		ids := make([]string, 0, len(r.Table))
		for id := range r.Table {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			spec := r.Table[id]
			if strings.TrimSpace(id) == "" {
				return nil, fmt.Errorf("%w: empty job identifier", ErrBadRegistration)
			}
			if strings.TrimSpace(spec.Crontab) == "" {
				return nil, fmt.Errorf("%w: job %q: crontab required", ErrBadRegistration, id)
			}
			if spec.Run == nil {
				return nil, fmt.Errorf("%w: job %q: nil callback", ErrBadRegistration, id)
			}
			jobs = append(jobs, Job{
				ID:            id,
				Crontab:       spec.Crontab,
				Base:          spec.Base,
				Run:           spec.Run,
				SingleProcess: spec.AllProc,
			})
		}
		return jobs, nil
	default:
		return nil, fmt.Errorf("%w: no jobs given", ErrBadRegistration)
	}
}

// syntheticID derives a stable identifier from the cron expression, so
// that every identically-configured process addresses the same claims.
func syntheticID(crontab string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(crontab))
	return fmt.Sprintf("cron-%08x", h.Sum32())
}

// jobState is the driver-owned per-job record: the definition, its
// parsed schedule, and occurrence counters.
type jobState struct {
	job   Job
	sched Schedule

	mu      sync.Mutex
	fired   uint64
	skipped uint64
	lastDue time.Time
	nextDue time.Time
}

func (st *jobState) markNext(due time.Time) {
	st.mu.Lock()
	st.nextDue = due
	st.mu.Unlock()
}

func (st *jobState) markFired(due time.Time) {
	st.mu.Lock()
	st.fired++
	st.lastDue = due
	st.mu.Unlock()
}

func (st *jobState) markSkipped(due time.Time) {
	st.mu.Lock()
	st.skipped++
	st.lastDue = due
	st.mu.Unlock()
}
