package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next due instant strictly after the reference.
// A zero return means the expression never matches again within the
// evaluator's horizon. cron.Schedule satisfies this; tests inject fakes.
type Schedule interface {
	Next(time.Time) time.Time
}

// Standard 5-field cron only: minute hour dom month dow. No seconds
// field and no @descriptors: the claim file encoding assumes due times
// on a whole-minute grid shared by every cooperating process.
var crontabParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// parseCrontab validates and compiles a cron expression. Called once at
// registration: the expression is immutable afterwards, so this is the
// only point a schedule error can occur.
func parseCrontab(expr string) (Schedule, error) {
	sched, err := crontabParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadSchedule, expr, err)
	}
	return sched, nil
}
