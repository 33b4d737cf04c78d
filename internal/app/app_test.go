package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solocron/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewAppStartStop(t *testing.T) {
	claimRoot := t.TempDir()
	path := writeConfig(t, `
logging:
  level: error
scheduler:
  mode: apptest
  claim_root: `+claimRoot+`
  release_window: 1s
jobs:
  nightly:
    crontab: "0 4 * * *"
    base: utc
    action: log
    message: nightly maintenance
`)

	a, err := NewApp(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	snap := a.Snapshot()
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, "nightly", snap.Jobs[0].ID)
	assert.Equal(t, "utc", snap.Jobs[0].Base)
	assert.Contains(t, snap.ClaimDir, "apptest")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, a.Stop(stopCtx, StopSignal))
	assert.NoError(t, a.Err())
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no jobs", body: "logging:\n  level: info\n"},
		{name: "bad crontab", body: `
jobs:
  broken:
    crontab: "not a schedule"
    action: log
`},
		{name: "exec without command", body: `
jobs:
  broken:
    crontab: "* * * * *"
    action: exec
`},
		{name: "unbalanced command quoting", body: `
jobs:
  broken:
    crontab: "* * * * *"
    action: exec
    command: "echo 'unterminated"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewApp(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestBuildAction(t *testing.T) {
	a := &App{}
	run, err := a.buildAction("pings", config.JobConfig{Action: "log", Message: "hi"})
	require.NoError(t, err)
	require.NotNil(t, run)

	run, err = a.buildAction("lister", config.JobConfig{Action: "exec", Command: `ls -la "/tmp"`})
	require.NoError(t, err)
	require.NotNil(t, run)

	_, err = a.buildAction("bad", config.JobConfig{Action: "purge"})
	assert.Error(t, err)
}
