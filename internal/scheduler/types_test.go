package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeBase(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    TimeBase
		wantErr bool
	}{
		{raw: "", want: BaseLocal},
		{raw: "local", want: BaseLocal},
		{raw: "UTC", want: BaseUTC},
		{raw: " utc ", want: BaseUTC},
		{raw: "mars", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimeBase(tt.raw)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrBadRegistration, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
	assert.Equal(t, time.UTC, BaseUTC.Location())
	assert.Equal(t, time.Local, BaseLocal.Location())
}

func TestNormalizeSingle(t *testing.T) {
	t.Parallel()
	run := func() {}

	jobs, err := Registration{Single: &SingleJob{Crontab: "* * * * *", Run: run}}.normalize()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.NotEmpty(t, jobs[0].ID)
	assert.Equal(t, BaseLocal, jobs[0].Base)
	assert.False(t, jobs[0].SingleProcess)

	// Synthesized identifiers must agree across identically configured
	// processes: same expression, same ID.
	again, err := Registration{Single: &SingleJob{Crontab: "* * * * *", Run: run}}.normalize()
	require.NoError(t, err)
	assert.Equal(t, jobs[0].ID, again[0].ID)

	pinned, err := Registration{Single: &SingleJob{Crontab: "* * * * *", Run: run, PinID: "fixed"}}.normalize()
	require.NoError(t, err)
	assert.Equal(t, "fixed", pinned[0].ID)
}

func TestNormalizeTable(t *testing.T) {
	t.Parallel()
	run := func() {}

	jobs, err := Registration{Table: map[string]JobSpec{
		"reports":   {Crontab: "*/5 * * * *", Run: run, Base: BaseUTC},
		"heartbeat": {Crontab: "* * * * *", Run: run, AllProc: true},
	}}.normalize()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	// Deterministic order: sorted by identifier.
	assert.Equal(t, "heartbeat", jobs[0].ID)
	assert.True(t, jobs[0].SingleProcess)
	assert.Equal(t, "reports", jobs[1].ID)
	assert.Equal(t, BaseUTC, jobs[1].Base)
}

func TestNormalizeRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()
	run := func() {}

	tests := []struct {
		name string
		reg  Registration
	}{
		{name: "neither variant", reg: Registration{}},
		{name: "both variants", reg: Registration{
			Single: &SingleJob{Crontab: "* * * * *", Run: run},
			Table:  map[string]JobSpec{"x": {Crontab: "* * * * *", Run: run}},
		}},
		{name: "empty table", reg: Registration{Table: map[string]JobSpec{}}},
		{name: "single without crontab", reg: Registration{Single: &SingleJob{Run: run}}},
		{name: "single without callback", reg: Registration{Single: &SingleJob{Crontab: "* * * * *"}}},
		{name: "table entry without crontab", reg: Registration{Table: map[string]JobSpec{"x": {Run: run}}}},
		{name: "table entry without callback", reg: Registration{Table: map[string]JobSpec{"x": {Crontab: "* * * * *"}}}},
		{name: "empty identifier", reg: Registration{Table: map[string]JobSpec{"": {Crontab: "* * * * *", Run: run}}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.reg.normalize()
			assert.ErrorIs(t, err, ErrBadRegistration)
		})
	}
}
