package claim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "solocron/pkg/logx"
)

// flock(2) locks belong to an open file description, not a process, so
// two handles on the same path contend inside one test process exactly
// like two preforked workers would.

func TestPathDeterministic(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	due := time.Unix(1756600000, 0)

	a, err := NewDir(root, "production")
	require.NoError(t, err)
	b, err := NewDir(root, "production")
	require.NoError(t, err)

	ha, err := a.Open("reports", due)
	require.NoError(t, err)
	hb, err := b.Open("reports", due)
	require.NoError(t, err)
	assert.Equal(t, ha.Path(), hb.Path())

	other, err := a.Open("reports", due.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, ha.Path(), other.Path())

	otherJob, err := a.Open("billing", due)
	require.NoError(t, err)
	assert.NotEqual(t, ha.Path(), otherJob.Path())
}

func TestModeScoping(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	due := time.Unix(1756600000, 0)

	prod, err := NewDir(root, "production")
	require.NoError(t, err)
	stage, err := NewDir(root, "staging")
	require.NoError(t, err)

	hp, err := prod.Open("reports", due)
	require.NoError(t, err)
	hs, err := stage.Open("reports", due)
	require.NoError(t, err)
	assert.NotEqual(t, hp.Path(), hs.Path())
}

func TestSanitizedIdentifier(t *testing.T) {
	t.Parallel()
	d, err := NewDir(t.TempDir(), "test")
	require.NoError(t, err)

	h, err := d.Open("../etc/passwd job", time.Unix(100, 0))
	require.NoError(t, err)
	assert.Equal(t, d.Path(), filepath.Dir(h.Path()))
	assert.False(t, strings.ContainsAny(filepath.Base(h.Path()), "/ "))
}

func TestAcquireReleaseLifecycle(t *testing.T) {
	t.Parallel()
	d, err := NewDir(t.TempDir(), "test")
	require.NoError(t, err)
	due := time.Unix(1756600000, 0)

	winner, err := d.Open("reports", due)
	require.NoError(t, err)
	loser, err := d.Open("reports", due)
	require.NoError(t, err)

	ok, err := winner.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = loser.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok, "second acquirer must lose the race")

	// Loser walks away without touching the winner's file.
	require.NoError(t, loser.Discard())
	_, err = os.Stat(winner.Path())
	require.NoError(t, err, "discard must not delete the claim file")

	// Winner cleans up; the path must be gone afterwards.
	require.NoError(t, winner.Release())
	_, err = os.Stat(winner.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestStaleFileIsReacquirable(t *testing.T) {
	t.Parallel()
	d, err := NewDir(t.TempDir(), "test")
	require.NoError(t, err)
	due := time.Unix(1756600000, 0)

	// Simulate a crashed owner: the file exists but no lock is held
	// (the kernel dropped it when the process died).
	stale, err := d.Open("reports", due)
	require.NoError(t, err)

	h, err := d.Open("reports", due)
	require.NoError(t, err)
	require.Equal(t, stale.Path(), h.Path())

	ok, err := h.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok, "lock state, not file existence, decides the claim")
	require.NoError(t, h.Release())
}

func TestReacquireAfterRelease(t *testing.T) {
	t.Parallel()
	d, err := NewDir(t.TempDir(), "test")
	require.NoError(t, err)
	due := time.Unix(1756600000, 0)

	h1, err := d.Open("reports", due)
	require.NoError(t, err)
	ok, err := h1.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h1.Release())

	// A fresh open recreates the path; the next occurrence race works
	// the same way.
	h2, err := d.Open("reports", due)
	require.NoError(t, err)
	ok, err = h2.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, h2.Release())
}

func TestSweep(t *testing.T) {
	t.Parallel()
	d, err := NewDir(t.TempDir(), "test")
	require.NoError(t, err)

	oldDue := time.Now().Add(-48 * time.Hour)
	freshDue := time.Now().Add(time.Hour)

	orphan, err := d.Open("reports", oldDue)
	require.NoError(t, err)

	held, err := d.Open("billing", oldDue)
	require.NoError(t, err)
	ok, err := held.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	fresh, err := d.Open("reports", freshDue)
	require.NoError(t, err)

	removed := d.Sweep(24*time.Hour, logx.Nop())
	assert.Equal(t, 1, removed)

	_, err = os.Stat(orphan.Path())
	assert.True(t, os.IsNotExist(err), "unlocked old claim must be swept")
	_, err = os.Stat(held.Path())
	assert.NoError(t, err, "locked claim must survive whatever its age")
	_, err = os.Stat(fresh.Path())
	assert.NoError(t, err, "recent claim must survive")

	require.NoError(t, held.Release())
}
