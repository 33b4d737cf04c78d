package app

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"solocron/internal/claim"
	"solocron/internal/config"
	"solocron/internal/eventbus"
	"solocron/internal/runtime/supervisor"
	"solocron/internal/scheduler"
	logx "solocron/pkg/logx"
)

// defaultSweepAge is how old an orphaned claim file must be before the
// startup sweep removes it. Generous on purpose: sweeping is hygiene,
// and a held lock protects a live claim regardless of file age.
const defaultSweepAge = 24 * time.Hour

// App wires the daemon together: config, logging, claim directory,
// scheduler, and the config watcher. The job table is fixed at startup;
// hot reload only retargets logging.
type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus
	dir  *claim.Dir

	sched *scheduler.Service

	mu  sync.Mutex
	sup *supervisor.Supervisor
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     eventbus.New(),
	}

	dir, err := claim.NewDir(cfg.Scheduler.ClaimRoot, cfg.Scheduler.Mode)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	a.dir = dir
	log.Info("claim directory ready", logx.String("path", dir.Path()))

	if cfg.Scheduler.Sweep {
		age, err := config.ParseDurationOrDefault("scheduler.sweep_age", cfg.Scheduler.SweepAge, defaultSweepAge)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		dir.Sweep(age, log.With(logx.String("comp", "claim")))
	}

	window, err := config.ParseDurationOrDefault("scheduler.release_window", cfg.Scheduler.ReleaseWindow, scheduler.DefaultReleaseWindow)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	a.sched = scheduler.New(scheduler.Config{ReleaseWindow: window},
		dir, a.bus, log.With(logx.String("comp", "scheduler")))

	table := make(map[string]scheduler.JobSpec, len(cfg.Jobs))
	for id, jc := range cfg.Jobs {
		base, err := scheduler.ParseTimeBase(jc.Base)
		if err != nil {
			logSvc.Close()
			return nil, fmt.Errorf("job %q: %w", id, err)
		}
		run, err := a.buildAction(id, jc)
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		table[id] = scheduler.JobSpec{
			Crontab: jc.Crontab,
			Run:     run,
			Base:    base,
			AllProc: jc.AllProc,
		}
	}
	if err := a.sched.Register(scheduler.Registration{Table: table}); err != nil {
		logSvc.Close()
		return nil, err
	}

	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error observed (if any). The scheduler's
// fatal errors (claim open/release failures) surface here.
func (a *App) Err() error {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup != nil {
		if err := sup.Err(); err != nil {
			return err
		}
	}
	return a.sched.Err()
}

// Snapshot exposes the scheduler's operational state.
func (a *App) Snapshot() scheduler.Snapshot { return a.sched.Snapshot() }

// runCtx is the lifetime context actions run under. Before Start (or
// after a never-started app) it degrades to Background.
func (a *App) runCtx() context.Context {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		return context.Background()
	}
	return sup.Context()
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)
	sup := a.sup
	a.mu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.sched.Start(sup.Context()); err != nil {
		return err
	}
	// The scheduler cancels its own context on a fatal driver error;
	// propagate that to the whole app so the process exits loudly.
	sup.Go("scheduler.wait", func(c context.Context) error {
		select {
		case <-c.Done():
			return nil
		case <-a.sched.Done():
			return a.sched.Err()
		}
	})

	// Occurrence events at debug level for operational tracing.
	events, unsub := a.bus.Subscribe(128)
	sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	// Hot reload: logging applies live, everything else needs a restart.
	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(last, newCfg)
				last = newCfg
			}
		}
	})

	sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("daemon started")
	return nil
}

func (a *App) applyReload(old, cfg *config.Config) {
	if cfg == nil {
		return
	}
	sections := diffSections(old, cfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
		case "scheduler", "jobs":
			// The job table and claim directory are immutable while
			// running; silently re-registering would desynchronize claim
			// paths across processes mid-flight.
			a.log.Warn("config section changed; restart required to take effect",
				logx.String("section", s))
		}
	}
	a.log.Info("config reloaded", logx.Any("changed", sections))
}

func diffSections(old, cfg *config.Config) []string {
	if old == nil {
		return []string{"logging", "scheduler", "jobs"}
	}
	var sections []string
	if !reflect.DeepEqual(old.Logging, cfg.Logging) {
		sections = append(sections, "logging")
	}
	if !reflect.DeepEqual(old.Scheduler, cfg.Scheduler) {
		sections = append(sections, "scheduler")
	}
	if !reflect.DeepEqual(old.Jobs, cfg.Jobs) {
		sections = append(sections, "jobs")
	}
	sort.Strings(sections)
	return sections
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding,
	// then wait for the scheduler to release its held claims.
	sup.Cancel()
	if err := a.sched.Stop(ctx); err != nil && !a.log.IsZero() {
		a.log.Warn("scheduler stop", logx.Err(err))
	}
	err := sup.Wait(ctx)

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return err
}
