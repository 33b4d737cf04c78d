package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solocron/internal/claim"
	"solocron/internal/eventbus"
	logx "solocron/pkg/logx"
)

func TestRegisterRejectsBadCrontab(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, nil, logx.Nop())
	err := svc.Register(Registration{Table: map[string]JobSpec{
		"broken": {Crontab: "61 * * * *", Run: func() {}, AllProc: true},
	}})
	require.ErrorIs(t, err, ErrBadSchedule)
	assert.Contains(t, err.Error(), "broken")
}

func TestRegisterIsAllOrNothing(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, nil, logx.Nop())
	err := svc.Register(Registration{Table: map[string]JobSpec{
		"good": {Crontab: "* * * * *", Run: func() {}, AllProc: true},
		"bad":  {Crontab: "nope", Run: func() {}, AllProc: true},
	}})
	require.ErrorIs(t, err, ErrBadSchedule)
	// The valid entry must not have been admitted alongside the broken one.
	assert.Empty(t, svc.byID)
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, nil, logx.Nop())
	require.NoError(t, svc.Register(Registration{Table: map[string]JobSpec{
		"reports": {Crontab: "* * * * *", Run: func() {}, AllProc: true},
	}}))
	err := svc.Register(Registration{Table: map[string]JobSpec{
		"reports": {Crontab: "*/5 * * * *", Run: func() {}, AllProc: true},
	}})
	require.ErrorIs(t, err, ErrBadRegistration)
}

func TestRegisterAfterStart(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, nil, logx.Nop())
	require.NoError(t, svc.Register(Registration{Table: map[string]JobSpec{
		"reports": {Crontab: "0 4 * * *", Run: func() {}, AllProc: true},
	}}))
	require.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop(context.Background()) }()

	err := svc.Register(Registration{Single: &SingleJob{Crontab: "* * * * *", Run: func() {}}})
	require.ErrorIs(t, err, ErrAlreadyStarted)

	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)
}

func TestStartNeedsClaimDirForSharedJobs(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, nil, logx.Nop())
	require.NoError(t, svc.Register(Registration{Table: map[string]JobSpec{
		"shared": {Crontab: "0 4 * * *", Run: func() {}},
	}}))
	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claim directory")
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, nil, nil, logx.Nop())
	assert.NoError(t, svc.Stop(context.Background()))
	assert.NoError(t, svc.Wait(context.Background()))
	assert.NoError(t, svc.Err())
	select {
	case <-svc.Done():
	default:
		t.Fatal("Done must be closed for a never-started service")
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	dir, err := claim.NewDir(t.TempDir(), "test")
	require.NoError(t, err)
	svc := New(Config{ReleaseWindow: time.Minute}, dir, eventbus.New(), logx.Nop())

	require.NoError(t, svc.Register(Registration{Table: map[string]JobSpec{
		"reports":   {Crontab: "*/5 * * * *", Run: func() {}, Base: BaseUTC},
		"heartbeat": {Crontab: "* * * * *", Run: func() {}, AllProc: true},
	}}))

	snap := svc.Snapshot()
	assert.Equal(t, dir.Path(), snap.ClaimDir)
	require.Len(t, snap.Jobs, 2)
	assert.Equal(t, "heartbeat", snap.Jobs[0].ID)
	assert.True(t, snap.Jobs[0].SingleProcess)
	assert.Equal(t, "reports", snap.Jobs[1].ID)
	assert.Equal(t, "utc", snap.Jobs[1].Base)
	assert.Zero(t, snap.Jobs[1].Fired)
	assert.True(t, snap.Jobs[1].NextDue.IsZero())
}
