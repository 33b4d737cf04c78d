package config

import (
	"fmt"
	"strings"
)

// Config is the daemon configuration. YAML configs are coerced to JSON
// before decoding, so field tags are JSON (see yaml.go).
type Config struct {
	Logging   LoggingConfig        `json:"logging"`
	Scheduler SchedulerConfig      `json:"scheduler"`
	Jobs      map[string]JobConfig `json:"jobs"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	// Mode scopes the claim directory so different deployments never
	// share claim files (e.g. "production", "staging").
	Mode string `json:"mode"`
	// ClaimRoot overrides the claim directory root (default: os temp dir).
	ClaimRoot string `json:"claim_root"`
	// ReleaseWindow is how long a winning process holds an occurrence
	// claim after firing before cleaning it up. Duration string, default 10s.
	ReleaseWindow string `json:"release_window"`
	// Sweep enables startup removal of orphaned claim files older than SweepAge.
	Sweep    bool   `json:"sweep"`
	SweepAge string `json:"sweep_age"`
}

type JobConfig struct {
	// Crontab is a standard 5-field cron expression.
	Crontab string `json:"crontab"`
	// Base selects the timezone for schedule evaluation: "local" (default) or "utc".
	Base string `json:"base"`
	// AllProc disables the cross-process claim for this job: every
	// process fires it. For per-process side effects or known
	// single-process deployments.
	AllProc bool `json:"all_proc"`
	// Action names the callback: "log" or "exec".
	Action  string `json:"action"`
	Message string `json:"message"` // action=log
	Command string `json:"command"` // action=exec, shell-quoted argv
}

// Validate rejects configurations the daemon cannot run. It runs before
// anything is registered, so a bad config never leaves a partially
// scheduled job table behind.
func (c *Config) Validate() error {
	if len(c.Jobs) == 0 {
		return fmt.Errorf("config: no jobs configured")
	}
	for id, j := range c.Jobs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config: job with empty identifier")
		}
		if strings.TrimSpace(j.Crontab) == "" {
			return fmt.Errorf("config: job %q: crontab required", id)
		}
		switch strings.ToLower(strings.TrimSpace(j.Base)) {
		case "", "local", "utc":
		default:
			return fmt.Errorf("config: job %q: base must be \"local\" or \"utc\", got %q", id, j.Base)
		}
		switch j.Action {
		case "log":
		case "exec":
			if strings.TrimSpace(j.Command) == "" {
				return fmt.Errorf("config: job %q: exec action requires command", id)
			}
		default:
			return fmt.Errorf("config: job %q: unknown action %q", id, j.Action)
		}
	}
	if _, err := ParseDurationField("scheduler.release_window", c.Scheduler.ReleaseWindow); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.sweep_age", c.Scheduler.SweepAge); err != nil {
		return err
	}
	return nil
}
