package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCrontabNext(t *testing.T) {
	t.Parallel()
	sched, err := parseCrontab("*/5 9-17 * * *")
	require.NoError(t, err)

	ref := time.Date(2026, time.March, 2, 9, 3, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 2, 9, 5, 0, 0, time.UTC), sched.Next(ref))

	// After the last slot of the day the schedule rolls to the next morning.
	late := time.Date(2026, time.March, 2, 17, 58, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC), sched.Next(late))
}

func TestParseCrontabMonotonic(t *testing.T) {
	t.Parallel()
	sched, err := parseCrontab("*/10 * * * *")
	require.NoError(t, err)

	ref := time.Date(2026, time.March, 2, 9, 3, 0, 0, time.UTC)
	prev := ref
	for i := 0; i < 20; i++ {
		next := sched.Next(prev)
		require.True(t, next.After(prev), "due times must strictly increase")
		prev = next
	}
}

func TestParseCrontabRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		expr string
	}{
		{name: "garbage", expr: "not a schedule"},
		{name: "out of range minute", expr: "61 * * * *"},
		{name: "six fields", expr: "0 */5 * * * *"},
		{name: "four fields", expr: "* * * *"},
		{name: "descriptor", expr: "@hourly"},
		{name: "empty", expr: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseCrontab(tt.expr)
			assert.ErrorIs(t, err, ErrBadSchedule)
		})
	}
}
