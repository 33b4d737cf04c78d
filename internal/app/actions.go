package app

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"

	"solocron/internal/config"
	logx "solocron/pkg/logx"
)

// execTimeout bounds one invocation of an exec action. Cron occurrences
// arrive at minute granularity; a command still running after this long
// is stuck, and killing it beats stalling the job's drive loop.
const execTimeout = 5 * time.Minute

// buildAction maps a job's configured action onto the zero-argument
// callback the scheduler fires. The command line is split up front so a
// malformed quote fails at load time, not at 04:00.
func (a *App) buildAction(id string, jc config.JobConfig) (func(), error) {
	switch jc.Action {
	case "log":
		msg := jc.Message
		if msg == "" {
			msg = "job fired"
		}
		jobLog := a.log.With(logx.String("job", id))
		return func() { jobLog.Info(msg) }, nil
	case "exec":
		argv, err := shellquote.Split(jc.Command)
		if err != nil {
			return nil, fmt.Errorf("job %q: command: %w", id, err)
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("job %q: empty command", id)
		}
		return func() { a.runExec(id, argv) }, nil
	default:
		return nil, fmt.Errorf("job %q: unknown action %q", id, jc.Action)
	}
}

// runExec runs one occurrence of an exec action inline on the driver
// goroutine. Failures are logged, not propagated: a failing command is a
// job problem, not a scheduler problem.
func (a *App) runExec(id string, argv []string) {
	ctx, cancel := context.WithTimeout(a.runCtx(), execTimeout)
	defer cancel()

	log := a.log.With(logx.String("job", id), logx.String("cmd", argv[0]))
	start := time.Now()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Error("command failed",
			logx.Err(err),
			logx.Duration("took", time.Since(start)),
			logx.String("output", string(out)))
		return
	}
	log.Info("command finished", logx.Duration("took", time.Since(start)))
}
